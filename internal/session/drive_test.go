package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/ovmsgazer/internal/models"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }
func b(v bool) *bool       { return &v }

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testDriveConfig() DriveConfig {
	return DriveConfig{
		CooldownWindow: 15 * time.Minute,
		MinDistanceKm:  0.1,
		PathInterval:   5 * time.Second,
	}
}

func TestNextDrive(t *testing.T) {
	t.Parallel()
	window := 15 * time.Minute
	since := t0

	tests := []struct {
		name       string
		phase      DrivePhase
		sig        DriveSignal
		wantPhase  DrivePhase
		wantAction DriveAction
	}{
		{"idle stays idle when parked", DriveIdle, DriveSignal{Now: t0, OdometerKnown: true}, DriveIdle, DriveNone},
		{"idle starts on motion", DriveIdle, DriveSignal{Now: t0, Moving: true, OdometerKnown: true}, DriveActive, DriveStart},
		{"idle needs odometer", DriveIdle, DriveSignal{Now: t0, Moving: true}, DriveIdle, DriveNone},
		{"idle blocked by charge", DriveIdle, DriveSignal{Now: t0, Moving: true, OdometerKnown: true, Blocked: true}, DriveIdle, DriveNone},
		{"active keeps moving", DriveActive, DriveSignal{Now: t0, Moving: true, OdometerKnown: true}, DriveActive, DriveNone},
		{"active enters cooldown", DriveActive, DriveSignal{Now: t0}, DriveCoolingDown, DriveCooldown},
		{"cooldown resumes", DriveCoolingDown, DriveSignal{Now: t0.Add(time.Minute), Moving: true}, DriveActive, DriveResume},
		{"cooldown waits", DriveCoolingDown, DriveSignal{Now: t0.Add(14 * time.Minute)}, DriveCoolingDown, DriveNone},
		{"cooldown expires", DriveCoolingDown, DriveSignal{Now: t0.Add(15 * time.Minute)}, DriveIdle, DriveFinalize},
		{"plug in ends cooldown", DriveCoolingDown, DriveSignal{Now: t0.Add(time.Minute), ChargeDetected: true}, DriveIdle, DriveFinalize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, action := NextDrive(tt.phase, since, tt.sig, window)
			assert.Equal(t, tt.wantPhase, phase)
			assert.Equal(t, tt.wantAction, action)
		})
	}
}

func TestIsMoving(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data models.VehicleData
		want bool
	}{
		{"parked", models.VehicleData{Speed: f(0), Gear: s("P")}, false},
		{"speed", models.VehicleData{Speed: f(12)}, true},
		{"drive gear", models.VehicleData{Speed: f(0), Gear: s("D")}, true},
		{"reverse lower case", models.VehicleData{Gear: s("r")}, true},
		{"numeric forward", models.VehicleData{Gear: s("1")}, true},
		{"numeric reverse", models.VehicleData{Gear: s("-1")}, true},
		{"numeric neutral", models.VehicleData{Gear: s("0")}, false},
		{"neutral", models.VehicleData{Gear: s("N")}, false},
		{"ignition off", models.VehicleData{IsOn: b(false), Speed: f(30), Gear: s("D")}, false},
		{"ignition on", models.VehicleData{IsOn: b(true), Speed: f(30)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMoving(&tt.data))
		})
	}
}

func TestDriveScenarioShortTripDiscarded(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	parked := &models.VehicleData{Speed: f(0), Gear: s("P"), Odometer: f(1000), SOC: f(80)}
	ev := tr.Tick(DriveSignalFor(t0, parked), parked, 37.9)
	assert.Equal(t, DriveNone, ev.Action)

	moving := &models.VehicleData{Speed: f(45), Gear: s("D"), Odometer: f(1000), SOC: f(80)}
	ev = tr.Tick(DriveSignalFor(t0.Add(time.Minute), moving), moving, 37.9)
	require.Equal(t, DriveStart, ev.Action)
	require.NotNil(t, ev.Drive)
	assert.Equal(t, 1000.0, ev.Drive.StartOdometerKm)

	stopAt := t0.Add(11 * time.Minute)
	ev = tr.Tick(DriveSignalFor(stopAt, parked), parked, 37.9)
	assert.Equal(t, DriveCooldown, ev.Action)
	assert.Equal(t, DriveCoolingDown, tr.Phase())

	ev = tr.Tick(DriveSignalFor(stopAt.Add(20*time.Minute), parked), parked, 37.9)
	require.Equal(t, DriveFinalize, ev.Action)
	require.NotNil(t, ev.Drive.EndTime)
	assert.Equal(t, stopAt, *ev.Drive.EndTime)
	assert.InDelta(t, 10.0, ev.Drive.DurationMin, 1e-9)
	assert.Zero(t, ev.Drive.DistanceKm)
	assert.True(t, ev.Discarded)
	assert.Nil(t, tr.Current())
	assert.Equal(t, DriveIdle, tr.Phase())
}

func TestDriveFinalizeComputesStats(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	start := &models.VehicleData{Speed: f(30), Odometer: f(1000), SOC: f(80), Latitude: f(52.1), Longitude: f(4.3)}
	tr.Tick(DriveSignalFor(t0, start), start, 40)

	end := &models.VehicleData{Speed: f(0), Gear: s("P"), Odometer: f(1020), SOC: f(75), Latitude: f(52.2), Longitude: f(4.4)}
	tr.Tick(DriveSignalFor(t0.Add(30*time.Minute), end), end, 40)
	ev := tr.Tick(DriveSignalFor(t0.Add(45*time.Minute), end), end, 40)

	require.Equal(t, DriveFinalize, ev.Action)
	assert.False(t, ev.Discarded)
	d := ev.Drive
	assert.InDelta(t, 20.0, d.DistanceKm, 1e-9)
	assert.InDelta(t, 2.0, d.ConsumptionKWh, 1e-9)
	assert.InDelta(t, 100.0, d.EfficiencyWhKm, 1e-9)
	assert.InDelta(t, 30.0, d.DurationMin, 1e-9)
	require.NotNil(t, d.EndLatitude)
	assert.Equal(t, 52.2, *d.EndLatitude)
	require.NotNil(t, d.SpeedMax)
	assert.Equal(t, 30.0, *d.SpeedMax)
}

func TestDriveRegenerationGivesZeroEfficiency(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	start := &models.VehicleData{Speed: f(30), Odometer: f(500), SOC: f(60)}
	tr.Tick(DriveSignalFor(t0, start), start, 40)

	end := &models.VehicleData{Speed: f(0), Odometer: f(505), SOC: f(61)}
	tr.Tick(DriveSignalFor(t0.Add(10*time.Minute), end), end, 40)
	ev := tr.Tick(DriveSignalFor(t0.Add(30*time.Minute), end), end, 40)

	require.Equal(t, DriveFinalize, ev.Action)
	assert.Less(t, ev.Drive.ConsumptionKWh, 0.0)
	assert.Zero(t, ev.Drive.EfficiencyWhKm)
}

func TestDriveCooldownResumeKeepsSession(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	moving := &models.VehicleData{Speed: f(50), Odometer: f(100), SOC: f(90)}
	stopped := &models.VehicleData{Speed: f(0), Odometer: f(105), SOC: f(89)}

	starts := 0
	now := t0
	var lastStop time.Time
	for i := 0; i < 5; i++ {
		ev := tr.Tick(DriveSignalFor(now, moving), moving, 40)
		if ev.Action == DriveStart {
			starts++
		}
		if i > 0 {
			assert.Equal(t, DriveResume, ev.Action)
			assert.True(t, tr.CooldownSince().IsZero())
		}
		now = now.Add(time.Minute)
		tr.Tick(DriveSignalFor(now, stopped), stopped, 40)
		lastStop = now
		assert.Equal(t, now, tr.CooldownSince())
		now = now.Add(5 * time.Minute)
	}

	assert.Equal(t, 1, starts)
	require.NotNil(t, tr.Current())
	assert.Equal(t, t0, tr.Current().StartTime)
	assert.Equal(t, DriveCoolingDown, tr.Phase())

	ev := tr.Tick(DriveSignalFor(lastStop.Add(16*time.Minute), stopped), stopped, 40)
	require.Equal(t, DriveFinalize, ev.Action)
	require.NotNil(t, ev.Drive.EndTime)
	assert.Equal(t, lastStop, *ev.Drive.EndTime)
	assert.Equal(t, t0.Add(25*time.Minute), lastStop)
	assert.InDelta(t, 25.0, ev.Drive.DurationMin, 1e-9)
	assert.InDelta(t, 5.0, ev.Drive.DistanceKm, 1e-9)
	assert.False(t, ev.Discarded)
	assert.True(t, tr.CooldownSince().IsZero())
}

func TestDriveOdometerRollbackClampsDistance(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	start := &models.VehicleData{Speed: f(30), Odometer: f(1000)}
	tr.Tick(DriveSignalFor(t0, start), start, 40)
	end := &models.VehicleData{Speed: f(0), Odometer: f(999)}
	tr.Tick(DriveSignalFor(t0.Add(time.Minute), end), end, 40)
	ev := tr.Tick(DriveSignalFor(t0.Add(20*time.Minute), end), end, 40)

	assert.Zero(t, ev.Drive.DistanceKm)
	assert.True(t, ev.Discarded)
}

func TestDrivePathSamplingInterval(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	d := &models.VehicleData{Speed: f(40), Odometer: f(10), Latitude: f(1), Longitude: f(2)}
	tr.Tick(DriveSignalFor(t0, d), d, 40)
	tr.Tick(DriveSignalFor(t0.Add(2*time.Second), d), d, 40)
	tr.Tick(DriveSignalFor(t0.Add(5*time.Second), d), d, 40)

	noFix := &models.VehicleData{Speed: f(40), Odometer: f(10), Latitude: f(1), Longitude: f(2), GPSLock: b(false)}
	tr.Tick(DriveSignalFor(t0.Add(20*time.Second), noFix), noFix, 40)

	require.NotNil(t, tr.Current())
	assert.Len(t, tr.Current().Path, 2)
}

func TestDriveBlockedByCharge(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	d := &models.VehicleData{Speed: f(5), Odometer: f(10)}
	sig := DriveSignalFor(t0, d)
	sig.Blocked = true
	ev := tr.Tick(sig, d, 40)

	assert.Equal(t, DriveNone, ev.Action)
	assert.Nil(t, tr.Current())
}

func TestDrivePlugInDuringCooldownFinalizes(t *testing.T) {
	t.Parallel()
	tr := NewDriveTracker(testDriveConfig())

	moving := &models.VehicleData{Speed: f(30), Odometer: f(100), SOC: f(50)}
	tr.Tick(DriveSignalFor(t0, moving), moving, 40)

	parked := &models.VehicleData{Speed: f(0), Odometer: f(110), SOC: f(48)}
	tr.Tick(DriveSignalFor(t0.Add(20*time.Minute), parked), parked, 40)

	plugged := &models.VehicleData{Speed: f(0), Odometer: f(110), SOC: f(48), Charging: b(true)}
	ev := tr.Tick(DriveSignalFor(t0.Add(21*time.Minute), plugged), plugged, 40)

	require.Equal(t, DriveFinalize, ev.Action)
	assert.False(t, ev.Discarded)
	assert.Equal(t, t0.Add(20*time.Minute), *ev.Drive.EndTime)
}
