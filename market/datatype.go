package market

import (
	"sort"
	"time"

	"github.com/BaSui01/stockrag/types"
)

// DataType 数据类型
type DataType string

const (
	RealtimeQuote  DataType = "realtime_quote"
	Financial      DataType = "financial"
	Announcements  DataType = "announcements"
	Shareholders   DataType = "shareholders"
	FundFlow       DataType = "fund_flow"
	DragonTiger    DataType = "dragon_tiger"
	CompanyProfile DataType = "company_profile"
)

// Shape 记录形态
type Shape int

const (
	// ShapeObject 单个对象（行情、财务摘要等）
	ShapeObject Shape = iota
	// ShapeList 子记录列表，统一放在 items 字段
	ShapeList
)

// TypeSpec 数据类型元信息
type TypeSpec struct {
	Type       DataType
	Shape      Shape
	DefaultTTL time.Duration
	// Table 持久化表名
	Table string
}

var registry = map[DataType]TypeSpec{
	RealtimeQuote:  {Type: RealtimeQuote, Shape: ShapeObject, DefaultTTL: 30 * time.Second},
	FundFlow:       {Type: FundFlow, Shape: ShapeObject, DefaultTTL: 5 * time.Minute},
	Announcements:  {Type: Announcements, Shape: ShapeList, DefaultTTL: 30 * time.Minute},
	DragonTiger:    {Type: DragonTiger, Shape: ShapeList, DefaultTTL: time.Hour},
	Financial:      {Type: Financial, Shape: ShapeObject, DefaultTTL: 6 * time.Hour},
	Shareholders:   {Type: Shareholders, Shape: ShapeList, DefaultTTL: 24 * time.Hour},
	CompanyProfile: {Type: CompanyProfile, Shape: ShapeObject, DefaultTTL: 24 * time.Hour},
}

func init() {
	for dt, spec := range registry {
		spec.Table = "md_" + string(dt)
		registry[dt] = spec
	}
}

// ParseDataType 校验并返回数据类型
func ParseDataType(s string) (DataType, error) {
	dt := DataType(s)
	if _, ok := registry[dt]; !ok {
		return "", types.NewValidationError("unsupported data type %q", s)
	}
	return dt, nil
}

// Spec 返回数据类型元信息
func (d DataType) Spec() (TypeSpec, bool) {
	s, ok := registry[d]
	return s, ok
}

// Valid 是否为已注册的数据类型
func (d DataType) Valid() bool {
	_, ok := registry[d]
	return ok
}

// IsList 是否为列表形态
func (d DataType) IsList() bool {
	return registry[d].Shape == ShapeList
}

// Table 返回持久化表名
func (d DataType) Table() string {
	return registry[d].Table
}

func (d DataType) String() string { return string(d) }

// AllDataTypes 返回全部数据类型（按名称排序）
func AllDataTypes() []DataType {
	out := make([]DataType, 0, len(registry))
	for dt := range registry {
		out = append(out, dt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DefaultTTLs 返回各数据类型的默认缓存 TTL
func DefaultTTLs() map[DataType]time.Duration {
	out := make(map[DataType]time.Duration, len(registry))
	for dt, spec := range registry {
		out[dt] = spec.DefaultTTL
	}
	return out
}
