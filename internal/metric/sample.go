package metric

import "strings"

// Source 指标命名空间
type Source string

const (
	SourceStandard Source = "standard" // v.* 标准指标
	SourceVendor   Source = "vendor"   // xi3.* 等厂商指标
)

// topicMarker 主题中指标路径的起始标记
const topicMarker = "/metric/"

// Sample 单条已解码的指标
type Sample struct {
	Key    string
	Value  Value
	Raw    string
	Source Source
}

// NewSample 由规范化 key 和原始文本构造指标
func NewSample(key, raw string) Sample {
	return Sample{
		Key:    key,
		Value:  ParseValue(raw),
		Raw:    raw,
		Source: SourceOf(key),
	}
}

// Text 返回文本形式；数值型的原始文本（如 "123 Main St"）按原文保留
func (s Sample) Text() string {
	if s.Value.Kind() == KindString || s.Raw == "" {
		return s.Value.Text()
	}
	return strings.TrimSpace(s.Raw)
}

// SourceOf 根据 key 前缀判断命名空间
func SourceOf(key string) Source {
	if strings.HasPrefix(key, "v.") {
		return SourceStandard
	}
	return SourceVendor
}

// KeyFromTopic 从总线主题中提取规范化 key
// 例: ovms/user/car/metric/v/b/soc -> v.b.soc
func KeyFromTopic(topic string) (string, bool) {
	idx := strings.Index(topic, topicMarker)
	if idx < 0 {
		return "", false
	}
	path := strings.Trim(topic[idx+len(topicMarker):], "/")
	if path == "" {
		return "", false
	}
	return strings.ReplaceAll(path, "/", "."), true
}
