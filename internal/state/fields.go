package state

import (
	"github.com/langchou/ovmsgazer/internal/metric"
	"github.com/langchou/ovmsgazer/internal/models"
)

// setter 将指标值写入具名字段，类型不符时返回 false
type setter func(d *models.VehicleData, s metric.Sample) bool

func number(field func(d *models.VehicleData) **float64) setter {
	return func(d *models.VehicleData, s metric.Sample) bool {
		n, ok := s.Value.Number()
		if !ok {
			return false
		}
		*field(d) = &n
		return true
	}
}

func flag(field func(d *models.VehicleData) **bool) setter {
	return func(d *models.VehicleData, s metric.Sample) bool {
		b, ok := s.Value.Bool()
		if !ok {
			return false
		}
		*field(d) = &b
		return true
	}
}

func text(field func(d *models.VehicleData) **string) setter {
	return func(d *models.VehicleData, s metric.Sample) bool {
		t := s.Text()
		*field(d) = &t
		return true
	}
}

// fields 规范化 key 到具名字段的映射表，未列出的 key 只保留在原始指标表中
var fields = map[string]setter{
	"v.type": func(d *models.VehicleData, s metric.Sample) bool {
		d.VehicleType = s.Text()
		return true
	},

	"v.b.soc":          number(func(d *models.VehicleData) **float64 { return &d.SOC }),
	"v.b.soh":          number(func(d *models.VehicleData) **float64 { return &d.SOH }),
	"v.b.voltage":      number(func(d *models.VehicleData) **float64 { return &d.Voltage }),
	"v.b.current":      number(func(d *models.VehicleData) **float64 { return &d.Current }),
	"v.b.power":        number(func(d *models.VehicleData) **float64 { return &d.Power }),
	"v.b.12v.voltage":  number(func(d *models.VehicleData) **float64 { return &d.Voltage12V }),
	"v.b.12v.current":  number(func(d *models.VehicleData) **float64 { return &d.Current12V }),
	"v.b.capacity":     number(func(d *models.VehicleData) **float64 { return &d.CapacityKWh }),
	"v.b.cac":          number(func(d *models.VehicleData) **float64 { return &d.CapacityAh }),
	"v.b.range.est":    number(func(d *models.VehicleData) **float64 { return &d.RangeEst }),
	"xi3.v.b.range.bc": number(func(d *models.VehicleData) **float64 { return &d.RangeEst }),
	"v.b.range.ideal":  number(func(d *models.VehicleData) **float64 { return &d.RangeIdeal }),
	"v.b.range.full":   number(func(d *models.VehicleData) **float64 { return &d.RangeFull }),
	"v.b.energy.used":  number(func(d *models.VehicleData) **float64 { return &d.EnergyUsed }),
	"v.b.temp":         number(func(d *models.VehicleData) **float64 { return &d.TempBattery }),

	"v.p.speed":     number(func(d *models.VehicleData) **float64 { return &d.Speed }),
	"v.p.odometer":  number(func(d *models.VehicleData) **float64 { return &d.Odometer }),
	"v.p.trip":      number(func(d *models.VehicleData) **float64 { return &d.TripDistance }),
	"v.p.latitude":  number(func(d *models.VehicleData) **float64 { return &d.Latitude }),
	"v.p.longitude": number(func(d *models.VehicleData) **float64 { return &d.Longitude }),
	"v.p.altitude":  number(func(d *models.VehicleData) **float64 { return &d.Elevation }),
	"v.p.direction": number(func(d *models.VehicleData) **float64 { return &d.Direction }),
	"v.p.satcount":  number(func(d *models.VehicleData) **float64 { return &d.GPSSats }),
	"v.p.gpslock":   flag(func(d *models.VehicleData) **bool { return &d.GPSLock }),
	"v.p.location":  text(func(d *models.VehicleData) **string { return &d.LocationName }),
	"v.m.rpm":       number(func(d *models.VehicleData) **float64 { return &d.MotorRPM }),
	"v.m.temp":      number(func(d *models.VehicleData) **float64 { return &d.TempMotor }),

	"v.e.gear":      text(func(d *models.VehicleData) **string { return &d.Gear }),
	"v.e.on":        flag(func(d *models.VehicleData) **bool { return &d.IsOn }),
	"v.e.locked":    flag(func(d *models.VehicleData) **bool { return &d.Locked }),
	"v.e.parktime":  number(func(d *models.VehicleData) **float64 { return &d.ParkTime }),
	"v.e.drivetime": number(func(d *models.VehicleData) **float64 { return &d.DriveTime }),
	"v.e.temp":      number(func(d *models.VehicleData) **float64 { return &d.TempAmbient }),
	"v.e.cabintemp": number(func(d *models.VehicleData) **float64 { return &d.TempCabin }),
	"v.d.fl":        flag(func(d *models.VehicleData) **bool { return &d.DoorFL }),
	"v.d.fr":        flag(func(d *models.VehicleData) **bool { return &d.DoorFR }),
	"v.d.rl":        flag(func(d *models.VehicleData) **bool { return &d.DoorRL }),
	"v.d.rr":        flag(func(d *models.VehicleData) **bool { return &d.DoorRR }),
	"v.d.hood":      flag(func(d *models.VehicleData) **bool { return &d.DoorHood }),
	"v.d.trunk":     flag(func(d *models.VehicleData) **bool { return &d.DoorTrunk }),
	"v.d.cp":        flag(func(d *models.VehicleData) **bool { return &d.DoorPort }),

	"v.c.state":    text(func(d *models.VehicleData) **string { return &d.ChargeState }),
	"v.c.kwh":      number(func(d *models.VehicleData) **float64 { return &d.ChargeKWh }),
	"v.c.power":    number(func(d *models.VehicleData) **float64 { return &d.ChargePower }),
	"v.c.voltage":  number(func(d *models.VehicleData) **float64 { return &d.ChargeVoltage }),
	"v.c.current":  number(func(d *models.VehicleData) **float64 { return &d.ChargeCurrent }),
	"v.c.charging": flag(func(d *models.VehicleData) **bool { return &d.Charging }),
	"v.c.temp":     number(func(d *models.VehicleData) **float64 { return &d.TempCharger }),

	"xi3.v.c.pilotsignal":      number(func(d *models.VehicleData) **float64 { return &d.PilotCurrent }),
	"xi3.v.c.chargeplugstatus": text(func(d *models.VehicleData) **string { return &d.PlugStatus }),
	"xi3.v.c.chargeledstate":   number(func(d *models.VehicleData) **float64 { return &d.ChargeLEDState }),
	"xi3.v.c.readytocharge":    flag(func(d *models.VehicleData) **bool { return &d.ReadyToCharge }),
	"xi3.v.c.temp.gatedriver":  number(func(d *models.VehicleData) **float64 { return &d.GateDriverTemp }),
}

// IsMapped 判断 key 是否映射到具名字段
func IsMapped(key string) bool {
	_, ok := fields[key]
	return ok
}
