// Package api is the client for the Pharos task service: login, daily
// check-in, faucet, profile and task verification.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pharosbot/internal/config"
	"pharosbot/internal/ratelimit"

	"github.com/tidwall/gjson"
)

// maxBodySize limits how much of a response is read.
const maxBodySize = 1 << 20

var (
	// ErrUnexpectedCode means the service answered with a non-zero code.
	ErrUnexpectedCode = errors.New("unexpected response code")
	// ErrNoSessionToken means login succeeded without returning a token.
	ErrNoSessionToken = errors.New("no session token in response")
	// ErrNoData means a successful response carried no data object.
	ErrNoData = errors.New("no data in response")
	// ErrMalformed means the body was not a JSON envelope.
	ErrMalformed = errors.New("malformed response")
)

// ResponseError carries the service's code and message.
type ResponseError struct {
	Code int64
	Msg  string
}

func (e *ResponseError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return fmt.Sprintf("code %d", e.Code)
}

func (e *ResponseError) Unwrap() error { return ErrUnexpectedCode }

// Profile is the subset of the user profile the pipeline reports.
type Profile struct {
	ID          string
	TaskPoints  int64
	TotalPoints int64
}

// Client talks to the task service. All fields are optional except BaseURL.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Limiter   *ratelimit.RateLimiter
	Debug     *DebugLogger
	UserAgent string
	Referer   string
}

// NewClient builds a client from config, picking one user agent at random.
func NewClient(cfg config.APIConfig, limiter *ratelimit.RateLimiter, debug *DebugLogger) *Client {
	ua := ""
	if len(cfg.UserAgents) > 0 {
		ua = cfg.UserAgents[rand.IntN(len(cfg.UserAgents))]
	}
	return &Client{
		BaseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		HTTP:      &http.Client{Timeout: cfg.Timeout},
		Limiter:   limiter,
		Debug:     debug,
		UserAgent: ua,
		Referer:   cfg.Referer,
	}
}

// envelope is a decoded {code, msg, data} response.
type envelope struct {
	Code int64
	Msg  string
	Data gjson.Result
}

// Login exchanges a signed challenge for a session token.
func (c *Client) Login(ctx context.Context, address, signature, inviteCode string) (string, error) {
	q := url.Values{}
	q.Set("address", address)
	q.Set("signature", signature)
	q.Set("invite_code", inviteCode)

	env, err := c.call(ctx, "login", http.MethodPost, "/user/login", q, address, "")
	if err != nil {
		return "", err
	}
	token := env.Data.Get("jwt")
	if !token.Exists() || token.String() == "" {
		return "", ErrNoSessionToken
	}
	return token.String(), nil
}

// CheckIn performs the daily check-in.
func (c *Client) CheckIn(ctx context.Context, address, token string) error {
	_, err := c.call(ctx, "check_in", http.MethodPost, "/sign/in", addressQuery(address), address, token)
	return err
}

// FaucetStatus reports whether the faucet can be claimed today.
func (c *Client) FaucetStatus(ctx context.Context, address, token string) (bool, error) {
	env, err := c.call(ctx, "faucet_status", http.MethodGet, "/faucet/status", addressQuery(address), address, token)
	if err != nil {
		return false, err
	}
	if !env.Data.Exists() {
		return false, ErrNoData
	}
	return env.Data.Get("is_able_to_faucet").Bool(), nil
}

// ClaimFaucet claims the daily faucet.
func (c *Client) ClaimFaucet(ctx context.Context, address, token string) error {
	_, err := c.call(ctx, "faucet_claim", http.MethodPost, "/faucet/daily", addressQuery(address), address, token)
	return err
}

// Profile fetches the account's identity and points.
func (c *Client) Profile(ctx context.Context, address, token string) (Profile, error) {
	env, err := c.call(ctx, "profile", http.MethodGet, "/user/profile", addressQuery(address), address, token)
	if err != nil {
		return Profile{}, err
	}
	info := env.Data.Get("user_info")
	if !info.Exists() {
		return Profile{}, ErrNoData
	}
	return Profile{
		ID:          info.Get("ID").String(),
		TaskPoints:  info.Get("TaskPoints").Int(),
		TotalPoints: info.Get("TotalPoints").Int(),
	}, nil
}

// VerifyTask asks the service whether txHash satisfies taskID.
func (c *Client) VerifyTask(ctx context.Context, address, token string, taskID int, txHash string) (bool, error) {
	q := addressQuery(address)
	q.Set("task_id", fmt.Sprint(taskID))
	q.Set("tx_hash", txHash)

	env, err := c.call(ctx, "verify", http.MethodPost, "/task/verify", q, address, token)
	if err != nil {
		return false, err
	}
	return env.Data.Get("verified").Bool(), nil
}

func addressQuery(address string) url.Values {
	q := url.Values{}
	q.Set("address", address)
	return q
}

// call performs one request and decodes the envelope. A non-zero code is
// returned as a *ResponseError.
func (c *Client) call(ctx context.Context, step, method, path string, q url.Values, address, token string) (envelope, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return envelope{}, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return envelope{}, err
	}
	c.setHeaders(req, token)

	c.Debug.LogRequest(address, step, req)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		c.Debug.LogError(address, step, err, time.Since(start))
		return envelope{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	_, _ = io.Copy(io.Discard, resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.Debug.LogError(address, step, err, duration)
		return envelope{}, err
	}
	c.Debug.LogResponse(address, step, resp, body, duration)

	if !gjson.ValidBytes(body) || !gjson.GetBytes(body, "code").Exists() {
		if resp.StatusCode >= 400 {
			return envelope{}, fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return envelope{}, ErrMalformed
	}

	parsed := gjson.ParseBytes(body)
	env := envelope{
		Code: parsed.Get("code").Int(),
		Msg:  parsed.Get("msg").String(),
		Data: parsed.Get("data"),
	}
	if env.Code != 0 {
		return env, &ResponseError{Code: env.Code, Msg: env.Msg}
	}
	return env, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	auth := "Bearer null"
	if token != "" {
		auth = "Bearer " + token
	}
	h := req.Header
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.8")
	h.Set("Authorization", auth)
	h.Set("Sec-Ch-Ua", `"Chromium";v="136", "Brave";v="136", "Not.A/Brand";v="99"`)
	h.Set("Sec-Ch-Ua-Mobile", "?0")
	h.Set("Sec-Ch-Ua-Platform", `"Windows"`)
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-site")
	h.Set("Sec-Gpc", "1")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	if c.Referer != "" {
		h.Set("Referer", c.Referer)
	}
	if c.UserAgent != "" {
		h.Set("User-Agent", c.UserAgent)
	}
}
