package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"probsbots/pkg/exchange"
)

const (
	MainnetURL = "https://api.bybit.com"
	TestnetURL = "https://api-testnet.bybit.com"
	DemoURL    = "https://api-demo.bybit.com"

	defaultTimeout    = 10 * time.Second
	defaultRecvWindow = 5 * time.Second

	retCodeOK                  = 0
	retCodeRateLimited         = 10006
	retCodeServerTimeout       = 10016
	retCodeLeverageNotModified = 110043
)

// Client signs and sends Bybit v5 REST requests.
type Client struct {
	http       *resty.Client
	apiKey     string
	apiSecret  string
	recvWindow time.Duration
	now        func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.http.SetBaseURL(u)
		}
	}
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

// WithTransport swaps the HTTP transport, e.g. for recorded cassettes.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.http.SetTransport(rt)
		}
	}
}

// WithRecvWindow sets the X-BAPI-RECV-WINDOW header.
func WithRecvWindow(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.recvWindow = d
		}
	}
}

// WithClock overrides the timestamp source used for signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient returns a signed v5 client. Public endpoints work with empty credentials.
func NewClient(apiKey, apiSecret string, opts ...Option) *Client {
	c := &Client{
		http:       resty.New().SetBaseURL(MainnetURL).SetTimeout(defaultTimeout),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: defaultRecvWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// APIError is a non-zero retCode returned by the venue.
type APIError struct {
	Code    int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bybit %s: retCode=%d %s", e.Path, e.Code, e.Message)
}

// Unwrap lets callers match the exchange sentinels with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case retCodeLeverageNotModified:
		return exchange.ErrLeverageNotModified
	case retCodeRateLimited, retCodeServerTimeout:
		return exchange.ErrTransient
	default:
		return exchange.ErrRejected
	}
}

// Get sends a signed GET and decodes result into out.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	query := params.Encode()
	req := c.http.R().SetContext(ctx).SetQueryString(query)
	c.sign(req, query)
	resp, err := req.Get(path)
	return c.decode(path, resp, err, out)
}

// Post sends a signed JSON POST and decodes result into out.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("bybit %s: encode body: %w", path, err)
	}
	req := c.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload)
	c.sign(req, string(payload))
	resp, err := req.Post(path)
	return c.decode(path, resp, err, out)
}

func (c *Client) sign(req *resty.Request, payload string) {
	if c.apiKey == "" {
		return
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	window := strconv.FormatInt(c.recvWindow.Milliseconds(), 10)
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + c.apiKey + window + payload))
	req.SetHeaders(map[string]string{
		"X-BAPI-API-KEY":     c.apiKey,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": window,
		"X-BAPI-SIGN":        hex.EncodeToString(mac.Sum(nil)),
		"X-BAPI-SIGN-TYPE":   "2",
	})
}

func (c *Client) decode(path string, resp *resty.Response, err error, out any) error {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("bybit %s: %v: %w", path, err, exchange.ErrTransient)
	}
	status := resp.StatusCode()
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return fmt.Errorf("bybit %s: http %d: %w", path, status, exchange.ErrTransient)
	}
	if status != http.StatusOK {
		return fmt.Errorf("bybit %s: http %d: %s: %w", path, status, resp.String(), exchange.ErrRejected)
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("bybit %s: decode envelope: %w", path, err)
	}
	if env.RetCode != retCodeOK {
		return &APIError{Code: env.RetCode, Message: env.RetMsg, Path: path}
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("bybit %s: decode result: %w", path, err)
	}
	return nil
}

// number is a decimal string field that may be blank.
type number string

func (n number) Float() float64 {
	if n == "" {
		return 0
	}
	d, err := decimal.NewFromString(string(n))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func millis(raw string) time.Time {
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
