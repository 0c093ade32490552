// =============================================================================
// 📦 测试数据工厂 - 行情与 RAG 测试数据
// =============================================================================
// 提供各数据类型的样例记录，字段名使用数据源原始写法，
// 便于同时覆盖规范化与叙述生成路径
// =============================================================================
package fixtures

import (
	"fmt"

	"github.com/BaSui01/stockrag/market"
)

// 常用证券代码
const (
	CodeMoutai   = "600519" // 沪市主板
	CodePingAn   = "000001" // 深市主板
	CodeCATL     = "300750" // 创业板
	CodeSTAR     = "688981" // 科创板
	CodeUnknown  = "123456" // 未知板块，仍然合法
	CodeNotValid = "60051X"
)

// =============================================================================
// 🎯 原始数据源记录
// =============================================================================

// RawQuote 实时行情（数据源字段名）
func RawQuote(code string) map[string]any {
	return map[string]any{
		"ts_code":    code + ".SH",
		"stock_name": "贵州茅台",
		"close":      1712.5,
		"pct_chg":    1.25,
		"chg":        21.1,
		"open":       1690.0,
		"high":       1720.0,
		"low":        1688.8,
		"pre_close":  1691.4,
		"vol":        25631.0,
		"amount":     "4,382,100.5",
		"pe_ttm":     28.7,
		"total_mv":   21512345.6,
	}
}

// RawFinancial 财务摘要
func RawFinancial() map[string]any {
	return map[string]any{
		"end_date":           "20240930",
		"total_revenue":      112345000000.0,
		"n_income_attr_p":    60876000000.0,
		"basic_eps":          48.46,
		"roe_weighted":       "25.3%",
		"grossprofit_margin": 91.8,
		"netprofit_margin":   52.1,
		"debt_to_assets":     17.6,
		"or_yoy":             16.9,
		"netprofit_yoy":      15.0,
	}
}

// RawAnnouncements n 条公告
func RawAnnouncements(n int) map[string]any {
	list := make([]any, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, map[string]any{
			"ann_title": fmt.Sprintf("关于第%d季度经营情况的公告", i+1),
			"ann_date":  fmt.Sprintf("2024-0%d-15", i%9+1),
			"type":      "定期报告",
			"content":   "公司经营情况稳定，主要产品销量同比增长。",
		})
	}
	return map[string]any{"data": list}
}

// RawShareholders 十大股东
func RawShareholders() map[string]any {
	return map[string]any{
		"end_date": "20240930",
		"list": []any{
			map[string]any{"holder_name": "中国贵州茅台酒厂(集团)有限责任公司", "hold_amount": 678291955.0, "hold_ratio": 54.0, "holder_type": "国有法人"},
			map[string]any{"holder_name": "香港中央结算有限公司", "hold_amount": 86010000.0, "hold_ratio": 6.85, "holder_type": "境外法人", "change": -1200000.0},
			map[string]any{"holder_name": "贵州省国有资本运营有限责任公司", "hold_amount": 56996777.0, "hold_ratio": 4.54},
		},
	}
}

// RawFundFlow 资金流向
func RawFundFlow() map[string]any {
	return map[string]any{
		"date":          "2024-10-18",
		"net_mf_amount": 35210.5,
		"elg_net":       20100.2,
		"lg_net":        15110.3,
		"md_net":        -8000.1,
		"sm_net":        -27210.4,
		"main_pct":      3.2,
	}
}

// RawDragonTiger 龙虎榜
func RawDragonTiger() map[string]any {
	return map[string]any{
		"rows": []any{
			map[string]any{"date": "2024-10-18", "explain": "日涨幅偏离值达7%", "net_amount": 125000000.0, "l_buy": 320000000.0, "l_sell": 195000000.0, "exalter": "机构专用"},
		},
	}
}

// RawCompanyProfile 公司概况
func RawCompanyProfile() map[string]any {
	return map[string]any{
		"com_name":      "贵州茅台酒股份有限公司",
		"industry":      "白酒",
		"list_date":     "2001-08-27",
		"main_business": "茅台酒及系列酒的生产与销售",
		"area":          "贵州",
		"chairman":      "张德芹",
		"intro":         "公司主营贵州茅台酒系列产品的生产与销售，拥有著名的茅台酒品牌。",
	}
}

// Raw 按数据类型返回原始样例
func Raw(dataType market.DataType, code string) map[string]any {
	switch dataType {
	case market.RealtimeQuote:
		return RawQuote(code)
	case market.Financial:
		return RawFinancial()
	case market.Announcements:
		return RawAnnouncements(3)
	case market.Shareholders:
		return RawShareholders()
	case market.FundFlow:
		return RawFundFlow()
	case market.DragonTiger:
		return RawDragonTiger()
	case market.CompanyProfile:
		return RawCompanyProfile()
	default:
		return nil
	}
}

// Canonical 返回规范化后的样例记录
func Canonical(dataType market.DataType, code string) market.Record {
	return market.Canonicalize(dataType, Raw(dataType, code))
}
