package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pharosbot/internal/config"
	"pharosbot/internal/ratelimit"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &Client{BaseURL: srv.URL, HTTP: &http.Client{Timeout: 5 * time.Second}, Referer: "https://testnet.example/", UserAgent: "test-agent"}
}

func TestClient_LoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("address") != "0xabc" || q.Get("signature") != "0xsig" || q.Get("invite_code") != "CODE" {
			t.Errorf("unexpected query: %v", q)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer null" {
			t.Errorf("Authorization = %q, want Bearer null", got)
		}
		if got := r.Header.Get("Referer"); got != "https://testnet.example/" {
			t.Errorf("Referer = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("User-Agent = %q", got)
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"jwt":"token-1"}}`)
	})

	token, err := c.Login(context.Background(), "0xabc", "0xsig", "CODE")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if token != "token-1" {
		t.Errorf("token = %q, want token-1", token)
	}
}

func TestClient_LoginFailures(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		wantErr error
		wantMsg string
	}{
		{"non-zero code", `{"code":1,"msg":"invalid signature"}`, 200, ErrUnexpectedCode, "invalid signature"},
		{"missing jwt", `{"code":0,"msg":"ok","data":{}}`, 200, ErrNoSessionToken, ""},
		{"empty jwt", `{"code":0,"data":{"jwt":""}}`, 200, ErrNoSessionToken, ""},
		{"not json", `<html>bad gateway</html>`, 200, ErrMalformed, ""},
		{"http error without envelope", `oops`, 502, nil, "HTTP 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := c.Login(context.Background(), "0xabc", "0xsig", "CODE")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && err.Error() != tt.wantMsg {
				t.Errorf("err.Error() = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestClient_ResponseErrorCarriesCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":7}`)
	})

	err := c.CheckIn(context.Background(), "0xabc", "tok")
	var re *ResponseError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *ResponseError", err)
	}
	if re.Code != 7 || re.Error() != "code 7" {
		t.Errorf("ResponseError = %+v (%q)", re, re.Error())
	}
}

func TestClient_AuthorizedCalls(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("%s: Authorization = %q", r.URL.Path, got)
		}
		switch r.URL.Path {
		case "/sign/in", "/faucet/daily":
			fmt.Fprint(w, `{"code":0,"msg":"ok"}`)
		case "/faucet/status":
			fmt.Fprint(w, `{"code":0,"data":{"is_able_to_faucet":true}}`)
		case "/user/profile":
			fmt.Fprint(w, `{"code":0,"data":{"user_info":{"ID":42,"TaskPoints":100,"TotalPoints":350}}}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	if err := c.CheckIn(ctx, "0xabc", "tok"); err != nil {
		t.Errorf("CheckIn: %v", err)
	}
	able, err := c.FaucetStatus(ctx, "0xabc", "tok")
	if err != nil || !able {
		t.Errorf("FaucetStatus = %v, %v", able, err)
	}
	if err := c.ClaimFaucet(ctx, "0xabc", "tok"); err != nil {
		t.Errorf("ClaimFaucet: %v", err)
	}
	p, err := c.Profile(ctx, "0xabc", "tok")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p != (Profile{ID: "42", TaskPoints: 100, TotalPoints: 350}) {
		t.Errorf("Profile = %+v", p)
	}

	want := []string{"POST /sign/in", "GET /faucet/status", "POST /faucet/daily", "GET /user/profile"}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestClient_MissingData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"msg":"ok"}`)
	})

	if _, err := c.FaucetStatus(context.Background(), "0xabc", "tok"); !errors.Is(err, ErrNoData) {
		t.Errorf("FaucetStatus err = %v, want ErrNoData", err)
	}
	if _, err := c.Profile(context.Background(), "0xabc", "tok"); !errors.Is(err, ErrNoData) {
		t.Errorf("Profile err = %v, want ErrNoData", err)
	}
}

func TestClient_VerifyTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/task/verify" || q.Get("task_id") != "402" || q.Get("tx_hash") != "0xhash" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"code":0,"data":{"verified":true}}`)
	})

	ok, err := c.VerifyTask(context.Background(), "0xabc", "tok", 402, "0xhash")
	if err != nil || !ok {
		t.Errorf("VerifyTask = %v, %v", ok, err)
	}
}

func TestClient_UsesLimiter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0}`)
	})
	c.Limiter = ratelimit.NewRateLimiter(0)

	for i := 0; i < 3; i++ {
		_ = c.CheckIn(context.Background(), "0xabc", "tok")
	}
	if c.Limiter.Waits() != 3 {
		t.Errorf("Waits() = %d, want 3", c.Limiter.Waits())
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"code":0}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.CheckIn(ctx, "0xabc", "tok"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hit %d times after cancellation", hits.Load())
	}
}

func TestNewClient(t *testing.T) {
	cfg := config.Default().API
	cfg.BaseURL = "https://api.example/"

	c := NewClient(cfg, nil, nil)
	if c.BaseURL != "https://api.example" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
	if c.HTTP.Timeout != cfg.Timeout {
		t.Errorf("Timeout = %v, want %v", c.HTTP.Timeout, cfg.Timeout)
	}
	found := false
	for _, ua := range cfg.UserAgents {
		if ua == c.UserAgent {
			found = true
		}
	}
	if !found {
		t.Errorf("UserAgent %q not from configured list", c.UserAgent)
	}
}
