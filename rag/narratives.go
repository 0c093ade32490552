package rag

import (
	"fmt"
	"math"
	"strings"

	"github.com/BaSui01/stockrag/market"
)

// =============================================================================
// 📝 叙述生成
// =============================================================================
// 每类数据生成若干段中文叙述，段落之间换行，句子以"。"结尾。
// 只使用规范字段名，缺失字段直接略过。
// =============================================================================

// narrativeBuilder 返回段落与是否识别到任何字段
type narrativeBuilder func(r market.Record) ([]string, bool)

var narrativeBuilders = map[market.DataType]narrativeBuilder{
	market.RealtimeQuote:  quoteNarrative,
	market.Financial:      financialNarrative,
	market.Announcements:  announcementNarrative,
	market.Shareholders:   shareholderNarrative,
	market.FundFlow:       fundFlowNarrative,
	market.DragonTiger:    dragonTigerNarrative,
	market.CompanyProfile: profileNarrative,
}

var dataTypeLabels = map[market.DataType]string{
	market.RealtimeQuote:  "实时行情",
	market.Financial:      "财务摘要",
	market.Announcements:  "公司公告",
	market.Shareholders:   "十大股东",
	market.FundFlow:       "资金流向",
	market.DragonTiger:    "龙虎榜",
	market.CompanyProfile: "公司概况",
}

var exchangeLabels = map[market.Exchange]string{
	market.ExchangeSH: "上海证券交易所",
	market.ExchangeSZ: "深圳证券交易所",
	market.ExchangeBJ: "北京证券交易所",
}

var boardLabels = map[market.Board]string{
	market.BoardMain:    "主板",
	market.BoardSTAR:    "科创板",
	market.BoardChiNext: "创业板",
	market.BoardBSE:     "北交所",
	market.BoardB:       "B股",
}

func typeLabel(dt market.DataType) string {
	if l, ok := dataTypeLabels[dt]; ok {
		return l
	}
	return string(dt)
}

// headerParagraph 说明证券与数据类型的引导段
func headerParagraph(code string, dt market.DataType) string {
	venue := "未知市场"
	if e, err := market.ParseEntity(code); err == nil {
		if ex, ok := exchangeLabels[e.Exchange]; ok {
			venue = ex + boardLabels[e.Board]
		}
	}
	return fmt.Sprintf("以下是%s上市证券%s的%s信息，内容由结构化数据整理生成，供检索与问答使用。", venue, code, typeLabel(dt))
}

// placeholderParagraph 未识别到任何字段时使用
func placeholderParagraph(code string, dt market.DataType) string {
	return fmt.Sprintf("证券%s的%s数据暂未包含可识别的字段，无法生成详细描述，请稍后重新同步或核对数据源返回的原始内容。", code, typeLabel(dt))
}

// =============================================================================
// 🔢 格式化
// =============================================================================

// fmtAmount 金额按亿/万元折算
func fmtAmount(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e8:
		return fmt.Sprintf("%.2f亿元", v/1e8)
	case abs >= 1e4:
		return fmt.Sprintf("%.2f万元", v/1e4)
	default:
		return fmt.Sprintf("%.2f元", v)
	}
}

func fmtShares(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e8:
		return fmt.Sprintf("%.2f亿股", v/1e8)
	case abs >= 1e4:
		return fmt.Sprintf("%.2f万股", v/1e4)
	default:
		return fmt.Sprintf("%.0f股", v)
	}
}

func fmtPrice(v float64) string   { return fmt.Sprintf("%.2f元", v) }
func fmtPercent(v float64) string { return fmt.Sprintf("%.2f%%", v) }
func fmtPlain(v float64) string   { return fmt.Sprintf("%.2f", v) }

// cleanText 去掉换行与首尾空白，避免破坏段落结构
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// sentence 以逗号连接非空分句并以句号结尾
func sentence(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	s := strings.Join(kept, "，")
	s = strings.TrimRight(s, "。.；;，,")
	return s + "。"
}

// clauses 按字段构造分句
type clauses struct {
	r     market.Record
	parts []string
}

func newClauses(r market.Record) *clauses { return &clauses{r: r} }

func (c *clauses) num(key, label string, format func(float64) string) *clauses {
	if v, ok := c.r.Num(key); ok {
		c.parts = append(c.parts, label+format(v))
	}
	return c
}

func (c *clauses) str(key, label, suffix string) *clauses {
	if v, ok := c.r.Str(key); ok {
		if v = cleanText(v); v != "" {
			c.parts = append(c.parts, label+v+suffix)
		}
	}
	return c
}

func (c *clauses) text(s string) *clauses {
	if s != "" {
		c.parts = append(c.parts, s)
	}
	return c
}

func (c *clauses) sentence() string { return sentence(c.parts...) }

// paragraphs 收集非空段落
type paragraphs []string

func (p *paragraphs) add(s string) {
	if s = strings.TrimSpace(s); s != "" {
		*p = append(*p, s)
	}
}

// =============================================================================
// 📈 各类型叙述
// =============================================================================

func quoteNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	subject := "该证券"
	if name, ok := r.Str("name"); ok {
		subject = cleanText(name)
	}
	price := newClauses(r).
		num("price", "最新价", fmtPrice).
		num("change_percent", "涨跌幅", fmtPercent).
		num("change", "涨跌额", fmtPrice)
	if len(price.parts) > 0 {
		price.parts[0] = subject + price.parts[0]
	}
	out.add(price.sentence())
	out.add(newClauses(r).
		num("open", "今日开盘价", fmtPrice).
		num("high", "最高价", fmtPrice).
		num("low", "最低价", fmtPrice).
		num("prev_close", "昨日收盘价", fmtPrice).sentence())
	out.add(newClauses(r).
		num("volume", "成交量", func(v float64) string { return fmt.Sprintf("%.0f手", v) }).
		num("turnover", "成交额", fmtAmount).
		num("turnover_rate", "换手率", fmtPercent).sentence())
	out.add(newClauses(r).
		num("pe", "市盈率", fmtPlain).
		num("pb", "市净率", fmtPlain).
		num("market_value", "总市值", fmtAmount).
		num("circulation", "流通市值", fmtAmount).sentence())
	out.add(newClauses(r).str("trade_time", "行情时间为", "").sentence())
	return out, len(out) > 0
}

func financialNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	lead := newClauses(r).
		str("report_date", "报告期", "").
		num("revenue", "营业收入", fmtAmount).
		num("net_profit", "净利润", fmtAmount).
		num("eps", "每股收益", fmtPrice)
	metrics := len(lead.parts)
	if _, ok := r.Str("report_date"); ok {
		metrics--
	}
	sections := []struct {
		prefix string
		c      *clauses
	}{
		{"盈利能力方面", newClauses(r).
			num("roe", "净资产收益率", fmtPercent).
			num("gross_margin", "毛利率", fmtPercent).
			num("net_margin", "净利率", fmtPercent)},
		{"成长性方面", newClauses(r).
			num("revenue_yoy", "营业收入同比增长", fmtPercent).
			num("profit_yoy", "净利润同比增长", fmtPercent)},
		{"财务结构方面", newClauses(r).
			num("debt_ratio", "资产负债率", fmtPercent).
			num("total_assets", "总资产", fmtAmount).
			num("bps", "每股净资产", fmtPrice).
			num("operating_cash_flow", "经营活动现金流净额", fmtAmount)},
	}
	out.add(lead.sentence())
	for _, sec := range sections {
		metrics += len(sec.c.parts)
		out.add(prefixed(sec.prefix, sec.c))
	}
	// 只有报告期不算有效财务数据
	if metrics == 0 {
		return nil, false
	}
	return out, true
}

func prefixed(prefix string, c *clauses) string {
	if len(c.parts) == 0 {
		return ""
	}
	return sentence(append([]string{prefix}, c.parts...)...)
}

// listItems 列表类记录的子项；没有 items 时把记录本身当作单个子项
func listItems(r market.Record) []market.Record {
	items := r.Items()
	if len(items) > 0 {
		return items
	}
	single := make(market.Record, len(r))
	for k, v := range r {
		if k != market.ItemsKey {
			single[k] = v
		}
	}
	if len(single) == 0 {
		return nil
	}
	return []market.Record{single}
}

func reportDateParagraph(r market.Record, tmpl string) string {
	if d, ok := r.Str("report_date"); ok {
		return fmt.Sprintf(tmpl, cleanText(d))
	}
	return ""
}

func announcementNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	recognized := false
	for _, item := range listItems(r) {
		title, hasTitle := item.Str("title")
		summary, hasSummary := item.Str("summary")
		if !hasTitle && !hasSummary {
			continue
		}
		recognized = true
		c := newClauses(item).str("ann_date", "", "发布")
		kind, _ := item.Str("ann_type")
		if hasTitle {
			c.text(fmt.Sprintf("%s公告《%s》", cleanText(kind), cleanText(title)))
		} else if kind != "" {
			c.text(cleanText(kind) + "公告")
		}
		p := c.sentence()
		if hasSummary {
			p += sentence("公告摘要：" + cleanText(summary))
		}
		if url, ok := item.Str("url"); ok {
			p += sentence("原文链接" + cleanText(url))
		}
		out.add(p)
	}
	if recognized {
		out = append(paragraphs{reportDateParagraph(r, "统计期为%s。")}, out...)
		out = compact(out)
	}
	return out, recognized
}

func shareholderNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	rank := 0
	for _, item := range listItems(r) {
		name, ok := item.Str("holder_name")
		if !ok {
			continue
		}
		rank++
		holder := fmt.Sprintf("第%d大股东为%s", rank, cleanText(name))
		if t, ok := item.Str("holder_type"); ok {
			holder += "（" + cleanText(t) + "）"
		}
		c := newClauses(item).text(holder).
			num("hold_amount", "持股", fmtShares).
			num("hold_ratio", "持股比例", fmtPercent)
		if v, ok := item.Num("hold_change"); ok {
			c.text("较上期变动" + fmtShares(v))
		} else {
			c.str("hold_change", "较上期", "")
		}
		out.add(c.sentence())
	}
	if rank == 0 {
		return nil, false
	}
	head := reportDateParagraph(r, "截至%s，公司前十大股东持股情况如下。")
	return compact(append(paragraphs{head}, out...)), true
}

func fundFlowNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	lead := newClauses(r).str("trade_date", "", "资金流向")
	main := newClauses(r).
		num("main_net_inflow", "主力净流入", fmtAmount).
		num("main_net_ratio", "主力净占比", fmtPercent)
	out.add(sentence(append(lead.parts, main.parts...)...))
	detail := newClauses(r).
		num("super_large_net", "超大单净流入", fmtAmount).
		num("large_net", "大单净流入", fmtAmount).
		num("medium_net", "中单净流入", fmtAmount).
		num("small_net", "小单净流入", fmtAmount)
	out.add(prefixed("其中", detail))
	return out, len(main.parts)+len(detail.parts) > 0
}

func dragonTigerNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	recognized := false
	for _, item := range listItems(r) {
		reason, hasReason := item.Str("reason")
		_, hasNet := item.Num("net_buy")
		if !hasReason && !hasNet {
			continue
		}
		recognized = true
		lead := newClauses(item).str("trade_date", "", "")
		if hasReason {
			lead.text("因" + cleanText(reason) + "登上龙虎榜")
		} else {
			lead.text("登上龙虎榜")
		}
		if len(lead.parts) == 2 {
			lead.parts = []string{lead.parts[0] + lead.parts[1]}
		}
		lead.num("close", "当日收盘价", fmtPrice).
			num("change_percent", "涨跌幅", fmtPercent)
		p := lead.sentence()
		p += newClauses(item).
			num("buy_amount", "买入额", fmtAmount).
			num("sell_amount", "卖出额", fmtAmount).
			num("net_buy", "净买入", fmtAmount).sentence()
		p += newClauses(item).str("seat", "上榜营业部为", "").sentence()
		out.add(p)
	}
	return out, recognized
}

func profileNarrative(r market.Record) ([]string, bool) {
	var out paragraphs
	subject := "公司"
	if name, ok := r.Str("name"); ok {
		subject = cleanText(name)
	}
	basic := newClauses(r).
		str("industry", subject+"所属行业为", "").
		str("province", "注册地区为", "").
		str("list_date", "上市日期为", "")
	out.add(basic.sentence())
	out.add(newClauses(r).
		str("chairman", "董事长为", "").
		str("employees", "员工人数", "人").
		str("website", "公司网站", "").sentence())
	out.add(newClauses(r).str("main_business", "主营业务：", "").sentence())
	out.add(newClauses(r).str("introduction", "公司简介：", "").sentence())
	recognized := len(out) > 0
	if !recognized {
		if _, ok := r.Str("name"); ok {
			out.add(sentence("公司名称为" + subject))
			recognized = true
		}
	}
	return out, recognized
}

func compact(ps paragraphs) paragraphs {
	out := ps[:0]
	for _, p := range ps {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
