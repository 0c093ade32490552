package market

import (
	"regexp"

	"github.com/BaSui01/stockrag/types"
)

// Exchange 交易所
type Exchange string

const (
	ExchangeSH      Exchange = "SH"
	ExchangeSZ      Exchange = "SZ"
	ExchangeBJ      Exchange = "BJ"
	ExchangeUnknown Exchange = "UNKNOWN"
)

// Board 板块
type Board string

const (
	BoardMain    Board = "main"
	BoardSTAR    Board = "star"    // 科创板
	BoardChiNext Board = "chinext" // 创业板
	BoardBSE     Board = "bse"     // 北交所
	BoardB       Board = "b_share"
	BoardUnknown Board = "unknown"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// Entity 证券实体，身份由 6 位代码唯一确定
type Entity struct {
	Code     string   `json:"code"`
	Exchange Exchange `json:"exchange"`
	Board    Board    `json:"board"`
}

// ValidateCode 校验证券代码格式
func ValidateCode(code string) error {
	if !codePattern.MatchString(code) {
		return types.NewValidationError("invalid entity code %q: expected 6 ASCII digits", code)
	}
	return nil
}

// ParseEntity 解析证券代码并推导交易所与板块
func ParseEntity(code string) (Entity, error) {
	if err := ValidateCode(code); err != nil {
		return Entity{}, err
	}
	ex, board := classify(code)
	return Entity{Code: code, Exchange: ex, Board: board}, nil
}

// Symbol 返回带交易所后缀的代码，例如 600519.SH
func (e Entity) Symbol() string {
	if e.Exchange == ExchangeUnknown {
		return e.Code
	}
	return e.Code + "." + string(e.Exchange)
}

func classify(code string) (Exchange, Board) {
	p2 := code[:2]
	p3 := code[:3]
	switch {
	case p3 == "688" || p3 == "689":
		return ExchangeSH, BoardSTAR
	case p2 == "60":
		return ExchangeSH, BoardMain
	case p2 == "90":
		return ExchangeSH, BoardB
	case p3 == "300" || p3 == "301":
		return ExchangeSZ, BoardChiNext
	case p2 == "00":
		return ExchangeSZ, BoardMain
	case p2 == "20":
		return ExchangeSZ, BoardB
	case p2 == "43" || p2 == "83" || p2 == "87" || p2 == "88" || p2 == "92":
		return ExchangeBJ, BoardBSE
	default:
		return ExchangeUnknown, BoardUnknown
	}
}
