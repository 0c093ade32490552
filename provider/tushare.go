package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stockrag/internal/tlsutil"
	"github.com/BaSui01/stockrag/market"
	"github.com/BaSui01/stockrag/types"
)

// =============================================================================
// 🌐 Tushare 风格 HTTP 数据源
// =============================================================================

// 数据类型 -> 接口名
var apiNames = map[market.DataType]string{
	market.RealtimeQuote:  "daily",
	market.Financial:      "fina_indicator",
	market.Announcements:  "anns",
	market.Shareholders:   "top10_holders",
	market.FundFlow:       "moneyflow",
	market.DragonTiger:    "top_list",
	market.CompanyProfile: "stock_company",
}

// 业务错误码
const (
	tushareCodeOK          = 0
	tushareCodeRateLimited = 40203
	tushareCodeNoPerm      = 40001
	tushareCodeBadToken    = -2001
)

// TushareConfig HTTP 数据源配置
type TushareConfig struct {
	Name    string
	BaseURL string
	Token   string
	Timeout time.Duration
}

// TushareClient Tushare Pro 协议客户端：POST {api_name, token, params, fields}
type TushareClient struct {
	cfg    TushareConfig
	client *http.Client
	logger *zap.Logger
}

// NewTushareClient 创建客户端
func NewTushareClient(cfg TushareConfig, logger *zap.Logger) *TushareClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "tushare"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &TushareClient{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "provider"), zap.String("provider", cfg.Name)),
	}
}

// Name 数据源名称
func (c *TushareClient) Name() string { return c.cfg.Name }

type tushareRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type tushareResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// Fetch 实现 Provider。单对象类型取第一行，列表类型把所有行放到 items。
func (c *TushareClient) Fetch(ctx context.Context, dataType market.DataType, code string, params map[string]string) (market.Record, error) {
	apiName, ok := apiNames[dataType]
	if !ok {
		return nil, types.NewValidationError("unsupported data type %q", dataType)
	}
	entity, err := market.ParseEntity(code)
	if err != nil {
		return nil, err
	}

	reqParams := make(map[string]string, len(params)+1)
	for k, v := range params {
		reqParams[k] = v
	}
	reqParams["ts_code"] = entity.Symbol()

	body, err := json.Marshal(tushareRequest{APIName: apiName, Token: c.cfg.Token, Params: reqParams})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode provider request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build provider request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return nil, types.NewError(types.ErrTimeout, "provider call timed out").
				WithProvider(c.cfg.Name).WithRetryable(true).WithCause(err)
		}
		return nil, types.NewProviderError(c.cfg.Name, err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	var out tushareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewProviderError(c.cfg.Name, fmt.Errorf("decode response: %w", err))
	}
	if err := c.checkBusinessCode(out); err != nil {
		return nil, err
	}
	if out.Data == nil || len(out.Data.Items) == 0 {
		c.logger.Debug("provider returned no rows",
			zap.String("data_type", string(dataType)),
			zap.String("code", code),
		)
		return nil, nil
	}

	rows := zipRows(out.Data.Fields, out.Data.Items)
	if dataType.IsList() {
		items := make([]any, 0, len(rows))
		for _, r := range rows {
			items = append(items, r)
		}
		return market.Record{market.ItemsKey: items}, nil
	}
	return market.Record(rows[0]), nil
}

func (c *TushareClient) checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, "provider rate limited").
			WithProvider(c.cfg.Name).WithRetryable(true).WithCause(cause)
	case resp.StatusCode >= 500:
		return types.NewProviderError(c.cfg.Name, cause)
	default:
		return types.NewProviderError(c.cfg.Name, cause).WithRetryable(false)
	}
}

func (c *TushareClient) checkBusinessCode(out tushareResponse) error {
	switch out.Code {
	case tushareCodeOK:
		return nil
	case tushareCodeRateLimited:
		return types.NewError(types.ErrRateLimited, out.Msg).
			WithProvider(c.cfg.Name).WithRetryable(true)
	case tushareCodeBadToken, tushareCodeNoPerm:
		return types.NewProviderError(c.cfg.Name, fmt.Errorf("code %d: %s", out.Code, out.Msg)).
			WithRetryable(false)
	default:
		return types.NewProviderError(c.cfg.Name, fmt.Errorf("code %d: %s", out.Code, out.Msg))
	}
}

// zipRows 把列式结果组装成行记录
func zipRows(fields []string, items [][]any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			if i < len(item) && item[i] != nil {
				row[f] = item[i]
			}
		}
		rows = append(rows, row)
	}
	return rows
}
