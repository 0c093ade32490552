package market

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// 🔤 字段同义词表
// =============================================================================

// fieldSet 规范字段名 -> 同义字段名
type fieldSet map[string][]string

var quoteFields = fieldSet{
	"name":           {"名称", "stock_name", "sec_name", "short_name"},
	"price":          {"最新价", "current", "close", "trade", "last_price", "now"},
	"change":         {"涨跌额", "chg", "change_amount"},
	"change_percent": {"涨跌幅", "pct_chg", "changepercent", "change_pct"},
	"open":           {"今开", "开盘"},
	"high":           {"最高"},
	"low":            {"最低"},
	"prev_close":     {"昨收", "pre_close", "settlement"},
	"volume":         {"成交量", "vol"},
	"turnover":       {"成交额", "amount"},
	"turnover_rate":  {"换手率", "turnoverratio"},
	"pe":             {"市盈率", "pe_ttm"},
	"pb":             {"市净率"},
	"market_value":   {"总市值", "total_mv", "mktcap"},
	"circulation":    {"流通市值", "circ_mv", "nmc"},
	"trade_time":     {"时间", "time", "timestamp", "ticktime"},
}

var financialFields = fieldSet{
	"report_date":         {"报告期", "end_date", "period"},
	"revenue":             {"营业收入", "total_revenue", "operating_revenue", "total_operate_income"},
	"net_profit":          {"净利润", "n_income", "netprofit", "parent_netprofit", "n_income_attr_p"},
	"eps":                 {"每股收益", "basic_eps"},
	"roe":                 {"净资产收益率", "roe_weighted", "roe_waa"},
	"gross_margin":        {"毛利率", "grossprofit_margin", "gross_profit_margin"},
	"net_margin":          {"净利率", "netprofit_margin"},
	"debt_ratio":          {"资产负债率", "debt_to_assets"},
	"revenue_yoy":         {"营收同比", "or_yoy", "tr_yoy", "revenue_growth"},
	"profit_yoy":          {"净利润同比", "netprofit_yoy", "profit_growth"},
	"total_assets":        {"总资产"},
	"bps":                 {"每股净资产"},
	"operating_cash_flow": {"经营现金流", "n_cashflow_act"},
}

var announcementItemFields = fieldSet{
	"title":    {"公告标题", "ann_title", "name"},
	"ann_date": {"公告日期", "date", "publish_date", "notice_date"},
	"ann_type": {"公告类型", "type", "category"},
	"summary":  {"摘要", "content", "abstract"},
	"url":      {"link", "adjunct_url"},
}

var shareholderItemFields = fieldSet{
	"holder_name": {"股东名称", "name", "holder"},
	"hold_amount": {"持股数量", "shares", "hold_num"},
	"hold_ratio":  {"持股比例", "ratio", "hold_pct"},
	"holder_type": {"股东性质", "type"},
	"hold_change": {"增减", "change", "change_amount"},
}

var fundFlowFields = fieldSet{
	"trade_date":      {"日期", "date"},
	"main_net_inflow": {"主力净流入", "net_mf_amount", "main_net"},
	"super_large_net": {"超大单净流入", "elg_net", "buy_elg_net"},
	"large_net":       {"大单净流入", "lg_net"},
	"medium_net":      {"中单净流入", "md_net"},
	"small_net":       {"小单净流入", "sm_net"},
	"main_net_ratio":  {"主力净占比", "main_pct"},
}

var dragonTigerItemFields = fieldSet{
	"trade_date":     {"上榜日期", "date"},
	"reason":         {"上榜原因", "explain"},
	"net_buy":        {"净买入", "net_amount"},
	"buy_amount":     {"买入额", "l_buy"},
	"sell_amount":    {"卖出额", "l_sell"},
	"close":          {"收盘价"},
	"change_percent": {"涨跌幅", "pct_change", "pct_chg"},
	"seat":           {"营业部", "exalter", "broker"},
}

var profileFields = fieldSet{
	"name":          {"公司名称", "com_name", "fullname", "stock_name"},
	"industry":      {"所属行业", "sector"},
	"list_date":     {"上市日期", "ipo_date"},
	"main_business": {"主营业务", "business", "main_bus"},
	"province":      {"地区", "area", "region"},
	"chairman":      {"董事长"},
	"employees":     {"员工人数"},
	"website":       {"公司网站"},
	"introduction":  {"公司简介", "intro", "profile"},
}

// 列表类数据的顶层字段
var listHeaderFields = fieldSet{
	"report_date": {"报告期", "end_date", "period"},
}

var itemsSynonyms = []string{ItemsKey, "data", "list", "records", "rows"}

type canonicalSpec struct {
	top   fieldSet
	items fieldSet
}

var canonicalSpecs = map[DataType]canonicalSpec{
	RealtimeQuote:  {top: quoteFields},
	Financial:      {top: financialFields},
	FundFlow:       {top: fundFlowFields},
	CompanyProfile: {top: profileFields},
	Announcements:  {top: listHeaderFields, items: announcementItemFields},
	Shareholders:   {top: listHeaderFields, items: shareholderItemFields},
	DragonTiger:    {top: listHeaderFields, items: dragonTigerItemFields},
}

// lookup 同义词 -> 规范字段名（小写比较）
func (fs fieldSet) lookup() map[string]string {
	out := make(map[string]string, len(fs)*3)
	for canonical, syns := range fs {
		out[strings.ToLower(canonical)] = canonical
		for _, s := range syns {
			out[strings.ToLower(s)] = canonical
		}
	}
	return out
}

var lookups = func() map[DataType][2]map[string]string {
	out := make(map[DataType][2]map[string]string, len(canonicalSpecs))
	for dt, spec := range canonicalSpecs {
		var items map[string]string
		if spec.items != nil {
			items = spec.items.lookup()
		}
		out[dt] = [2]map[string]string{spec.top.lookup(), items}
	}
	return out
}()

// =============================================================================
// 🧹 规范化
// =============================================================================

// Canonicalize 把数据源返回的原始记录映射为规范形态。
// 同义字段统一改名，未识别字段原样保留；列表容器统一放到 items 下。
// 规范字段名与同义字段同时出现时，规范字段名优先。
// 返回的记录经过 JSON 往返，数值统一为 float64。
func Canonicalize(dataType DataType, raw map[string]any) Record {
	if raw == nil {
		return nil
	}
	lk, ok := lookups[dataType]
	if !ok {
		return normalizeValues(Record(raw))
	}

	out := renameFields(raw, lk[0])

	if dataType.IsList() {
		var items []any
		for _, key := range itemsSynonyms {
			if v, exists := out[key]; exists {
				if list, ok := v.([]any); ok {
					items = list
				} else if list, ok := toAnySlice(v); ok {
					items = list
				}
				delete(out, key)
				if items != nil {
					break
				}
			}
		}
		canonItems := make([]any, 0, len(items))
		for _, it := range items {
			m, ok := toMap(it)
			if !ok {
				continue
			}
			canonItems = append(canonItems, renameFields(m, lk[1]))
		}
		out[ItemsKey] = canonItems
	}

	return normalizeValues(out)
}

func renameFields(raw map[string]any, lookup map[string]string) Record {
	out := make(Record, len(raw))
	// 先放规范字段，保证其优先级
	for k, v := range raw {
		if canonical, ok := lookup[strings.ToLower(k)]; ok && canonical == k {
			out[k] = v
		}
	}
	for k, v := range raw {
		canonical, ok := lookup[strings.ToLower(k)]
		if !ok {
			if _, taken := out[k]; !taken {
				out[k] = v
			}
			continue
		}
		if _, taken := out[canonical]; !taken {
			out[canonical] = v
		}
	}
	return out
}

func toMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func toAnySlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []Record:
		out := make([]any, len(s))
		for i := range s {
			out[i] = map[string]any(s[i])
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func normalizeValues(r Record) Record {
	data, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return r
	}
	return out
}
