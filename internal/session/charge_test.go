package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/ovmsgazer/internal/models"
)

func testChargeConfig() ChargeConfig {
	return ChargeConfig{
		ChartInterval:  time.Minute,
		MaxChartPoints: 500,
		MinDuration:    time.Minute,
		LineVoltage:    220,
	}
}

func TestDetectCharge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data models.VehicleData
		want ChargeSignals
	}{
		{"none", models.VehicleData{}, ChargeSignals{}},
		{"vendor pair", models.VehicleData{PilotCurrent: f(16), PlugStatus: s("Connected")}, ChargeSignals{Vendor: true}},
		{"pilot without plug", models.VehicleData{PilotCurrent: f(16)}, ChargeSignals{}},
		{"plug without pilot", models.VehicleData{PilotCurrent: f(0), PlugStatus: s("connected")}, ChargeSignals{}},
		{"state topoff", models.VehicleData{ChargeState: s("topoff")}, ChargeSignals{State: true}},
		{"state done", models.VehicleData{ChargeState: s("done")}, ChargeSignals{}},
		{"flag", models.VehicleData{Charging: b(true)}, ChargeSignals{Flag: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectCharge(&tt.data)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Vendor || tt.want.State || tt.want.Flag, got.Any())
		})
	}
}

func TestNextCharge(t *testing.T) {
	t.Parallel()

	phase, action := NextCharge(ChargeIdle, ChargeSignal{Detected: true})
	assert.Equal(t, ChargeActive, phase)
	assert.Equal(t, ChargeStart, action)

	phase, action = NextCharge(ChargeIdle, ChargeSignal{Detected: true, Blocked: true})
	assert.Equal(t, ChargeIdle, phase)
	assert.Equal(t, ChargeNone, action)

	phase, action = NextCharge(ChargeActive, ChargeSignal{Detected: true})
	assert.Equal(t, ChargeActive, phase)
	assert.Equal(t, ChargeSample, action)

	phase, action = NextCharge(ChargeActive, ChargeSignal{})
	assert.Equal(t, ChargeIdle, phase)
	assert.Equal(t, ChargeFinalize, action)

	phase, action = NextCharge(ChargeIdle, ChargeSignal{})
	assert.Equal(t, ChargeIdle, phase)
	assert.Equal(t, ChargeNone, action)
}

func TestChargePower(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7.2, ChargePower(&models.VehicleData{ChargePower: f(7.2), Power: f(-9)}, 220))
	assert.Equal(t, 6.5, ChargePower(&models.VehicleData{Power: f(-6.5)}, 220))
	assert.InDelta(t, 3.52, ChargePower(&models.VehicleData{PilotCurrent: f(16)}, 220), 1e-9)
	assert.InDelta(t, 3.68, ChargePower(&models.VehicleData{PilotCurrent: f(16), ChargeVoltage: f(230)}, 220), 1e-9)
	assert.Zero(t, ChargePower(&models.VehicleData{}, 220))
}

func TestLocationHint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Home", LocationHint(&models.VehicleData{LocationName: s("Home")}, "Somewhere"))
	assert.Equal(t, "Somewhere", LocationHint(&models.VehicleData{Latitude: f(1), Longitude: f(2)}, "Somewhere"))
	assert.Equal(t, "1.500000,2.250000", LocationHint(&models.VehicleData{Latitude: f(1.5), Longitude: f(2.25)}, ""))
	assert.Equal(t, "Unknown", LocationHint(&models.VehicleData{}, ""))
}

func TestChargeScenarioVendorSignals(t *testing.T) {
	t.Parallel()
	tr := NewChargeTracker(testChargeConfig())

	plugged := &models.VehicleData{PilotCurrent: f(16), PlugStatus: s("Connected"), SOC: f(40)}
	ev := tr.Tick(t0, ChargeSignal{Detected: DetectCharge(plugged).Any()}, plugged, 37.9, "Home")
	require.Equal(t, ChargeStart, ev.Action)
	assert.True(t, ev.Charted)
	assert.Equal(t, "Home", ev.Charge.Location)
	require.Len(t, ev.Charge.ChartData, 1)
	assert.InDelta(t, 3.52, ev.Charge.ChartData[0].Power, 1e-9)

	ev = tr.Tick(t0.Add(30*time.Second), ChargeSignal{Detected: true}, plugged, 37.9, "")
	assert.Equal(t, ChargeSample, ev.Action)
	assert.False(t, ev.Charted)

	done := &models.VehicleData{PilotCurrent: f(0), PlugStatus: s("Connected"), SOC: f(50)}
	ev = tr.Tick(t0.Add(10*time.Minute), ChargeSignal{Detected: DetectCharge(done).Any()}, done, 37.9, "")
	require.Equal(t, ChargeFinalize, ev.Action)
	assert.False(t, ev.Discarded)
	assert.InDelta(t, 3.79, ev.Charge.AddedKWh, 1e-9)
	assert.InDelta(t, 10.0, ev.Charge.DurationMin, 1e-9)
	require.NotNil(t, ev.Charge.EndSOC)
	assert.Equal(t, 50.0, *ev.Charge.EndSOC)
	assert.Nil(t, tr.Current())
}

func TestChargePrefersReportedEnergy(t *testing.T) {
	t.Parallel()
	tr := NewChargeTracker(testChargeConfig())

	d := &models.VehicleData{Charging: b(true), SOC: f(40), ChargePower: f(11)}
	tr.Tick(t0, ChargeSignal{Detected: true}, d, 40, "")
	d = &models.VehicleData{Charging: b(false), SOC: f(60), ChargeKWh: f(9.5), ChargePower: f(0)}
	ev := tr.Tick(t0.Add(time.Hour), ChargeSignal{}, d, 40, "")

	assert.Equal(t, 9.5, ev.Charge.AddedKWh)
	assert.Equal(t, 11.0, ev.Charge.MaxPowerKW)
	assert.InDelta(t, 11.0, ev.Charge.AvgPowerKW, 1e-9)
}

func TestChargeEnergyNeverNegative(t *testing.T) {
	t.Parallel()
	tr := NewChargeTracker(testChargeConfig())

	d := &models.VehicleData{Charging: b(true), SOC: f(80)}
	tr.Tick(t0, ChargeSignal{Detected: true}, d, 40, "")
	d = &models.VehicleData{SOC: f(79)}
	ev := tr.Tick(t0.Add(5*time.Minute), ChargeSignal{}, d, 40, "")

	assert.Zero(t, ev.Charge.AddedKWh)
}

func TestShortChargeDiscarded(t *testing.T) {
	t.Parallel()
	tr := NewChargeTracker(testChargeConfig())

	d := &models.VehicleData{ChargeState: s("charging"), SOC: f(50)}
	tr.Tick(t0, ChargeSignal{Detected: true}, d, 40, "")
	ev := tr.Tick(t0.Add(30*time.Second), ChargeSignal{}, d, 40, "")

	assert.Equal(t, ChargeFinalize, ev.Action)
	assert.True(t, ev.Discarded)
}

func TestChargeChartCapped(t *testing.T) {
	t.Parallel()
	cfg := testChargeConfig()
	cfg.MaxChartPoints = 3
	tr := NewChargeTracker(cfg)

	d := &models.VehicleData{Charging: b(true), ChargePower: f(7)}
	for i := 0; i < 5; i++ {
		tr.Tick(t0.Add(time.Duration(i)*time.Minute), ChargeSignal{Detected: true}, d, 40, "")
	}

	chart := tr.Current().ChartData
	require.Len(t, chart, 3)
	assert.Equal(t, t0.Add(2*time.Minute).UnixMilli(), chart[0].Timestamp)
	assert.Equal(t, t0.Add(4*time.Minute).UnixMilli(), chart[2].Timestamp)
}

func TestEffectiveCapacity(t *testing.T) {
	t.Parallel()
	def := CapacityDefaults{DefaultKWh: 37.9, NominalVoltage: 352}

	assert.Equal(t, 42.0, EffectiveCapacity(&models.VehicleData{CapacityKWh: f(42), CapacityAh: f(94)}, def))
	assert.InDelta(t, 33.088, EffectiveCapacity(&models.VehicleData{CapacityAh: f(94)}, def), 1e-9)
	assert.Equal(t, 37.9, EffectiveCapacity(&models.VehicleData{}, def))
}
