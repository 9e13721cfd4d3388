package xunhu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupay-bridge/internal/constants"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

var (
	ErrConfigInvalid      = errors.New("xunhu config invalid")
	ErrAmountInvalid      = errors.New("xunhu amount invalid")
	ErrInvalidQuery       = errors.New("xunhu query requires exactly one of order id or gateway order id")
	ErrGatewayRejected    = errors.New("xunhu gateway rejected")
	ErrGatewayUnreachable = errors.New("xunhu gateway unreachable")
	ErrResponseInvalid    = errors.New("xunhu response invalid")
	ErrSignatureInvalid   = errors.New("xunhu signature invalid")
	ErrStatusUnknown      = errors.New("xunhu status unknown")
)

// RejectedError 网关业务失败（HTTP 200 但 errcode 非 0）
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s: errcode=%d errmsg=%s", ErrGatewayRejected.Error(), e.Code, e.Message)
}

func (e *RejectedError) Unwrap() error {
	return ErrGatewayRejected
}

// Config 网关配置
type Config struct {
	AppID       string
	AppSecret   string
	BaseURL     string
	CreatePath  string
	QueryURL    string
	NotifyURL   string
	ReturnURL   string
	CallbackURL string
	Plugins     string
	Timeout     time.Duration
}

// Validate 校验网关配置完整性
func (c Config) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("%w: appid is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(c.AppSecret) == "" {
		return fmt.Errorf("%w: appsecret is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(c.NotifyURL) == "" {
		return fmt.Errorf("%w: notify_url is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.AppID = strings.TrimSpace(c.AppID)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.TrimSpace(c.CreatePath) == "" {
		c.CreatePath = constants.GatewayDefaultCreatePath
	}
	if strings.TrimSpace(c.QueryURL) == "" {
		c.QueryURL = buildEndpoint(c.BaseURL, constants.GatewayDefaultQueryPath)
	}
	if strings.TrimSpace(c.Plugins) == "" {
		c.Plugins = constants.GatewayDefaultPlugins
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// CreateInput 下单输入
type CreateInput struct {
	OrderID     string
	Amount      decimal.Decimal
	Title       string
	Attach      string
	ReturnURL   string
	CallbackURL string
}

// CreateResult 下单结果
type CreateResult struct {
	GatewayOrderID string
	RedirectURL    string
	QRCodeURL      string
	Raw            map[string]interface{}
}

// QueryInput 查单输入，OrderID 与 GatewayOrderID 二选一
type QueryInput struct {
	OrderID        string
	GatewayOrderID string
}

// QueryResult 查单结果
type QueryResult struct {
	OrderID        string
	GatewayOrderID string
	StatusCode     string
	State          string
	TransactionID  string
	TotalFee       string
	Fields         map[string]string
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 替换底层 resty 客户端
func WithHTTPClient(hc *resty.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithNonceFunc 替换随机串生成
func WithNonceFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.nonce = fn
		}
	}
}

// WithClock 替换时间源
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

// Client 虎皮椒网关客户端
type Client struct {
	cfg   Config
	http  *resty.Client
	nonce func() string
	now   func() time.Time
}

// NewClient 创建网关客户端
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		cfg:   cfg,
		nonce: newNonce,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = resty.New()
	}
	c.http.SetTimeout(cfg.Timeout)
	c.http.SetHeader("Accept", "application/json, text/plain, */*")
	return c, nil
}

// CreateOrder 向网关下单
func (c *Client) CreateOrder(ctx context.Context, input CreateInput) (*CreateResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrConfigInvalid)
	}
	totalFee, err := FormatAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = orderID
	}
	returnURL := firstNonEmpty(input.ReturnURL, c.cfg.ReturnURL)
	callbackURL := firstNonEmpty(input.CallbackURL, c.cfg.CallbackURL)

	params := map[string]string{
		"version":        constants.GatewayAPIVersion,
		"appid":          c.cfg.AppID,
		"trade_order_id": orderID,
		"total_fee":      totalFee,
		"title":          title,
		"notify_url":     c.cfg.NotifyURL,
		"return_url":     returnURL,
		"callback_url":   callbackURL,
		"plugins":        c.cfg.Plugins,
		"attach":         input.Attach,
	}
	body, err := c.postSigned(ctx, buildEndpoint(c.cfg.BaseURL, c.cfg.CreatePath), params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Errcode   flexInt `json:"errcode"`
		Errmsg    string  `json:"errmsg"`
		OpenID    flexStr `json:"openid"`
		URL       string  `json:"url"`
		URLQRCode string  `json:"url_qrcode"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if int(resp.Errcode) != constants.GatewayResponseCodeSuccess {
		return nil, &RejectedError{Code: int(resp.Errcode), Message: strings.TrimSpace(resp.Errmsg)}
	}
	result := &CreateResult{
		GatewayOrderID: strings.TrimSpace(string(resp.OpenID)),
		RedirectURL:    strings.TrimSpace(resp.URL),
		QRCodeURL:      strings.TrimSpace(resp.URLQRCode),
		Raw:            decodeRaw(body),
	}
	if result.RedirectURL == "" && result.QRCodeURL == "" {
		return nil, fmt.Errorf("%w: neither url nor url_qrcode returned", ErrResponseInvalid)
	}
	return result, nil
}

// QueryOrder 主动查询订单状态
func (c *Client) QueryOrder(ctx context.Context, input QueryInput) (*QueryResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	gatewayOrderID := strings.TrimSpace(input.GatewayOrderID)
	if (orderID == "") == (gatewayOrderID == "") {
		return nil, ErrInvalidQuery
	}
	params := map[string]string{
		"appid":           c.cfg.AppID,
		"out_trade_order": orderID,
		"open_order_id":   gatewayOrderID,
	}
	body, err := c.postSigned(ctx, c.cfg.QueryURL, params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Errcode flexInt                `json:"errcode"`
		Errmsg  string                 `json:"errmsg"`
		Data    map[string]interface{} `json:"data"`
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if int(resp.Errcode) != constants.GatewayResponseCodeSuccess {
		return nil, &RejectedError{Code: int(resp.Errcode), Message: strings.TrimSpace(resp.Errmsg)}
	}
	fields := make(map[string]string, len(resp.Data))
	for key, value := range resp.Data {
		fields[key] = stringValue(value)
	}
	code := strings.TrimSpace(fields["status"])
	state, err := MapStatus(code)
	if err != nil {
		return nil, err
	}
	result := &QueryResult{
		OrderID:        firstNonEmpty(fields["out_trade_order"], fields["trade_order_id"], orderID),
		GatewayOrderID: firstNonEmpty(fields["open_order_id"], gatewayOrderID),
		StatusCode:     strings.ToUpper(code),
		State:          state,
		TransactionID:  strings.TrimSpace(fields["transaction_id"]),
		TotalFee:       firstNonEmpty(fields["total_amount"], fields["total_fee"]),
		Fields:         fields,
	}
	return result, nil
}

// postSigned 补齐 time/nonce_str/hash 后以表单提交；时间戳与随机串在发送时生成。
func (c *Client) postSigned(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	signed := make(map[string]string, len(params)+3)
	for k, v := range params {
		if v == "" {
			continue
		}
		signed[k] = v
	}
	signed["time"] = strconv.FormatInt(c.now().Unix(), 10)
	signed["nonce_str"] = c.nonce()
	signed[FieldHash] = Sign(signed, c.cfg.AppSecret)

	// 在途请求只受客户端超时约束，不跟随调用方取消。
	resp, err := c.http.R().
		SetContext(context.WithoutCancel(ctx)).
		SetFormData(signed).
		Post(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("%w: http status %d", ErrGatewayUnreachable, resp.StatusCode())
	}
	return resp.Body(), nil
}

// FormatAmount 按网关要求输出两位小数金额，超过两位小数直接拒绝而不是四舍五入
func FormatAmount(amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: must be positive", ErrAmountInvalid)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return "", fmt.Errorf("%w: more than 2 decimal places: %s", ErrAmountInvalid, amount.String())
	}
	return amount.StringFixed(2), nil
}

func buildEndpoint(baseURL, path string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func decodeRaw(body []byte) map[string]interface{} {
	var raw map[string]interface{}
	_ = json.Unmarshal(body, &raw)
	return raw
}

func stringValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// flexInt 兼容网关返回数字或字符串形式的 errcode
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexStr 兼容网关返回数字或字符串形式的订单号
type flexStr string

func (f *flexStr) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexStr(s)
		return nil
	}
	*f = flexStr(raw)
	return nil
}
