package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return "http " + strconv.Itoa(e.Code) + ": " + e.Body
}

// IsNotFound 404 响应
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	Retries   int
	UserAgent string
	Headers   map[string]string
}

// Client resty 封装；请求路径可以是相对 BaseURL 的路径，也可以是完整 URL
type Client struct {
	client *resty.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "gopopswap"
	}
	// resty 会自动读取 HTTP_PROXY/HTTPS_PROXY
	c := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeaders(opts.Headers).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if s, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && s > 0 {
					return time.Duration(s) * time.Second, nil
				}
			}
			return 0, nil
		})
	if opts.BaseURL != "" {
		c.SetBaseURL(strings.TrimRight(opts.BaseURL, "/"))
	}
	return &Client{client: c}
}

func (c *Client) newRequest(ctx context.Context, headers map[string]string) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json, */*")
	for k, v := range headers {
		r.SetHeader(k, v)
	}
	return r
}

// GetJSON GET 并把 JSON 响应体解码到 out
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	resp, err := c.newRequest(ctx, headers).Get(url)
	if err := checkResponse(resp, err); err != nil {
		return errors.Wrapf(err, "GET %s", url)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode %s", url)
	}
	return nil
}

// Probe HEAD 请求，只关心状态码
func (c *Client) Probe(ctx context.Context, url string) (int, error) {
	resp, err := c.newRequest(ctx, nil).Head(url)
	if err != nil {
		return 0, errors.Wrapf(err, "HEAD %s", url)
	}
	return resp.StatusCode(), nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 256 {
		body = body[:256]
	}
	return &StatusError{Code: resp.StatusCode(), Body: body}
}
