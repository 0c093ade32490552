package market

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ItemsKey 列表类记录的子记录字段
const ItemsKey = "items"

// Record 规范化后的数据记录
type Record map[string]any

// Items 返回列表类记录的子记录
func (r Record) Items() []Record {
	raw, ok := r[ItemsKey]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []Record:
		return v
	case []map[string]any:
		out := make([]Record, 0, len(v))
		for _, m := range v {
			out = append(out, Record(m))
		}
		return out
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Record(m))
			case Record:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// Str 读取字符串字段，数字会被格式化
func (r Record) Str(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// Num 读取数值字段，兼容字符串形式的数字
func (r Record) Num(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "%")
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// IsEmpty 记录是否不含任何有效内容
func (r Record) IsEmpty() bool {
	if len(r) == 0 {
		return true
	}
	if items, ok := r[ItemsKey]; ok && len(r) == 1 {
		return len(Record{ItemsKey: items}.Items()) == 0
	}
	return false
}

// Clone 深拷贝（经 JSON 往返）
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// CanonicalJSON 返回键有序的 JSON 编码
func CanonicalJSON(r Record) ([]byte, error) {
	// encoding/json 对 map 键排序输出
	return json.Marshal(r)
}

// ContentHash 计算记录的确定性内容哈希
func ContentHash(r Record) (string, error) {
	data, err := CanonicalJSON(r)
	if err != nil {
		return "", fmt.Errorf("canonical json: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// DecodeRecord 从 JSON 字节解码记录
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// ParamsKey 返回查询参数的规范化表示，空参数返回空串
func ParamsKey(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}

// CacheKey 返回 (data_type, code, params) 对应的缓存键
func CacheKey(dataType DataType, code string, params map[string]string) string {
	key := "stockrag:md:" + string(dataType) + ":" + code
	if pk := ParamsKey(params); pk != "" {
		sum := sha1.Sum([]byte(pk))
		key += ":" + hex.EncodeToString(sum[:])[:16]
	}
	return key
}
