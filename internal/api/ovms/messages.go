package ovms

import (
	"fmt"
	"strconv"
	"strings"
)

// milesToKm 英里转公里
const milesToKm = 1.60934

// Message 一条解密后的协议消息 "MP-0 <type><payload>"
type Message struct {
	Type   byte
	Fields []string
}

// Reading 由协议记录展开的一条指标
type Reading struct {
	Key string
	Raw string
}

// ParseLine 拆分协议消息
func ParseLine(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	rest, ok := strings.CutPrefix(line, messageTag+" ")
	if !ok || rest == "" {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}

	msg := Message{Type: rest[0]}
	if payload := rest[1:]; payload != "" {
		msg.Fields = strings.Split(payload, ",")
	}
	return msg, nil
}

// Decoder 将定长位置记录展开为标准指标
// 状态记录携带的距离单位会影响之后的所有记录
type Decoder struct {
	miles bool
}

// Decode 展开一条消息，不认识的类型返回 nil
func (d *Decoder) Decode(msg Message) ([]Reading, error) {
	switch msg.Type {
	case 'S':
		return d.status(msg.Fields)
	case 'L':
		return d.location(msg.Fields)
	case 'D':
		return d.environment(msg.Fields)
	}
	return nil, nil
}

// status 状态记录
// soc,units,linevoltage,chargecurrent,chargestate,chargemode,idealrange,estrange,...,chargekwh(0.1)
// 本协议版本的 S 记录不含温度，温度全部来自 D 记录
func (d *Decoder) status(f []string) ([]Reading, error) {
	if len(f) < 8 {
		return nil, malformed('S', "%d fields", len(f))
	}

	r := &recordReader{fields: f}
	soc := r.number(0)
	voltage := r.number(2)
	current := r.number(3)
	ideal := r.number(6)
	est := r.number(7)
	if r.err != nil {
		return nil, malformed('S', "%v", r.err)
	}

	units := strings.ToUpper(strings.TrimSpace(f[1]))
	d.miles = units == "M"

	out := []Reading{
		num("v.b.soc", soc),
		num("v.c.voltage", voltage),
		num("v.c.current", current),
		{Key: "v.c.state", Raw: strings.TrimSpace(f[4])},
		{Key: "v.c.mode", Raw: strings.TrimSpace(f[5])},
		num("v.b.range.ideal", d.distance(ideal)),
		num("v.b.range.est", d.distance(est)),
	}
	if kwh, ok := r.optional(11); ok {
		out = append(out, num("v.c.kwh", kwh/10))
	}
	return out, nil
}

// location 位置记录
// lat,lon,direction,altitude,gpslock,stalegps,speed,trip(0.1),...,power
func (d *Decoder) location(f []string) ([]Reading, error) {
	if len(f) < 8 {
		return nil, malformed('L', "%d fields", len(f))
	}

	r := &recordReader{fields: f}
	lat := r.number(0)
	lon := r.number(1)
	direction := r.number(2)
	altitude := r.number(3)
	lock := r.number(4)
	stale := r.number(5)
	speed := r.number(6)
	trip := r.number(7)
	if r.err != nil {
		return nil, malformed('L', "%v", r.err)
	}

	out := []Reading{
		num("v.p.latitude", lat),
		num("v.p.longitude", lon),
		num("v.p.direction", direction),
		num("v.p.altitude", altitude),
		flagReading("v.p.gpslock", lock != 0),
		flagReading("v.p.gpsstale", stale == 0),
		num("v.p.speed", d.distance(speed)),
		num("v.p.trip", d.distance(trip/10)),
	}
	if power, ok := r.optional(9); ok {
		out = append(out, num("v.b.power", power))
	}
	return out, nil
}

// environment 环境记录
// doors1,doors2,lockstatus,temppem,tempmotor,tempbattery,trip(0.1),odometer(0.1),speed,parktime,ambient,...
func (d *Decoder) environment(f []string) ([]Reading, error) {
	if len(f) < 11 {
		return nil, malformed('D', "%d fields", len(f))
	}

	r := &recordReader{fields: f}
	doors1 := int(r.number(0))
	doors2 := int(r.number(1))
	lock := r.number(2)
	pem := r.number(3)
	motor := r.number(4)
	battery := r.number(5)
	trip := r.number(6)
	odometer := r.number(7)
	speed := r.number(8)
	parktime := r.number(9)
	ambient := r.number(10)
	if r.err != nil {
		return nil, malformed('D', "%v", r.err)
	}

	out := []Reading{
		flagReading("v.d.fl", doors1&(1<<0) != 0),
		flagReading("v.d.fr", doors1&(1<<1) != 0),
		flagReading("v.d.cp", doors1&(1<<2) != 0),
		flagReading("v.c.charging", doors1&(1<<4) != 0),
		flagReading("v.e.on", doors1&(1<<7) != 0),
		flagReading("v.d.hood", doors2&(1<<6) != 0),
		flagReading("v.d.trunk", doors2&(1<<7) != 0),
		flagReading("v.e.locked", lock == 4),
		num("v.i.temp", pem),
		num("v.m.temp", motor),
		num("v.b.temp", battery),
		num("v.p.trip", d.distance(trip/10)),
		num("v.p.odometer", d.distance(odometer/10)),
		num("v.p.speed", d.distance(speed)),
		num("v.e.parktime", parktime),
		num("v.e.temp", ambient),
	}
	if charger, ok := r.optional(18); ok {
		out = append(out, num("v.c.temp", charger))
	}
	if cabin, ok := r.optional(20); ok {
		out = append(out, num("v.e.cabintemp", cabin))
	}
	return out, nil
}

func (d *Decoder) distance(v float64) float64 {
	if d.miles {
		return v * milesToKm
	}
	return v
}

// recordReader 逐字段解析数字，记录第一个错误
type recordReader struct {
	fields []string
	err    error
}

func (r *recordReader) number(i int) float64 {
	if r.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(r.fields[i]), 64)
	if err != nil {
		r.err = fmt.Errorf("field %d: %w", i, err)
		return 0
	}
	return v
}

// optional 可选字段，缺失或非数字时忽略
func (r *recordReader) optional(i int) (float64, bool) {
	if i >= len(r.fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(r.fields[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func malformed(kind byte, format string, args ...any) error {
	return fmt.Errorf("%w: %c record: %s", ErrMalformed, kind, fmt.Sprintf(format, args...))
}

func num(key string, v float64) Reading {
	return Reading{Key: key, Raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

func flagReading(key string, v bool) Reading {
	if v {
		return Reading{Key: key, Raw: "yes"}
	}
	return Reading{Key: key, Raw: "no"}
}
