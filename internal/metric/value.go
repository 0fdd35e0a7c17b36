package metric

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Kind 指标值类型
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindNumber
)

// Value 经过类型推断后的指标值
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
}

// leadingNumber 匹配开头的带符号十进制数，尾随单位被丢弃（"12.5 V" -> 12.5）
var leadingNumber = regexp.MustCompile(`^-?\d+(\.\d+)?`)

// ParseValue 将文本编码的指标值转换为带类型的值，永不失败
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "yes", "true":
		return Bool(true)
	case "no", "false":
		return Bool(false)
	}
	if m := leadingNumber.FindString(trimmed); m != "" {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			return Number(n)
		}
	}
	return String(trimmed)
}

// Bool 构造布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number 构造数值
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// String 构造字符串值
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// Number 返回数值；布尔值按 0/1 处理
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Bool 返回布尔值；数值非 0 视为 true
func (v Value) Bool() (bool, bool) {
	switch v.kind {
	case KindBool:
		return v.b, true
	case KindNumber:
		return v.n != 0, true
	}
	return false, false
}

// Text 返回文本形式
func (v Value) Text() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	}
	return v.s
}

// Interface 返回原生 Go 值（bool / float64 / string），用于 JSON 持久化
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	}
	return v.s
}

// MarshalJSON 实现 json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
