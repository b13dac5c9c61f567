package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxBodyLogSize = 1024

// DebugLogger traces remote-service traffic at debug level. Authorization
// headers are redacted. A nil *DebugLogger logs nothing.
type DebugLogger struct {
	log *zap.Logger
}

func NewDebugLogger(log *zap.Logger) *DebugLogger {
	if log == nil {
		return nil
	}
	return &DebugLogger{log: log.Named("api")}
}

func (d *DebugLogger) enabled() bool {
	return d != nil && d.log.Core().Enabled(zap.DebugLevel)
}

func (d *DebugLogger) LogRequest(address, step string, req *http.Request) {
	if !d.enabled() {
		return
	}

	fields := []zap.Field{
		zap.String("address", address),
		zap.String("step", step),
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Strings("headers", formatHeaders(req.Header)),
	}
	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		if err == nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			if len(body) > 0 {
				fields = append(fields, zap.String("body", truncateBody(body)))
			}
		}
	}
	d.log.Debug("request", fields...)
}

func (d *DebugLogger) LogResponse(address, step string, resp *http.Response, body []byte, duration time.Duration) {
	if !d.enabled() {
		return
	}
	d.log.Debug("response",
		zap.String("address", address),
		zap.String("step", step),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", duration.Round(time.Millisecond)),
		zap.String("body", truncateBody(redactBody(body))),
	)
}

func (d *DebugLogger) LogError(address, step string, err error, duration time.Duration) {
	if !d.enabled() {
		return
	}
	d.log.Debug("request failed",
		zap.String("address", address),
		zap.String("step", step),
		zap.Duration("duration", duration.Round(time.Millisecond)),
		zap.Error(err),
	)
}

func formatHeaders(h http.Header) []string {
	out := make([]string, 0, len(h))
	for name, values := range h {
		v := strings.Join(values, ", ")
		if strings.EqualFold(name, "Authorization") {
			v = redact(v)
		}
		out = append(out, name+": "+v)
	}
	return out
}

// redact keeps the scheme and the last four characters of a credential.
func redact(v string) string {
	scheme, token, ok := strings.Cut(v, " ")
	if !ok {
		scheme, token = "", v
	}
	if token == "null" || token == "" {
		return v
	}
	tail := ""
	if len(token) > 8 {
		tail = token[len(token)-4:]
	}
	if scheme == "" {
		return "***" + tail
	}
	return scheme + " ***" + tail
}

// redactBody masks session tokens carried in a response payload.
func redactBody(body []byte) []byte {
	for _, path := range []string{"data.jwt", "jwt", "data.token"} {
		token := gjson.GetBytes(body, path)
		if token.Type != gjson.String || token.Str == "" {
			continue
		}
		body = bytes.ReplaceAll(body, []byte(token.Str), []byte(redact(token.Str)))
	}
	return body
}

func truncateBody(body []byte) string {
	if len(body) <= maxBodyLogSize {
		return string(body)
	}
	return string(body[:maxBodyLogSize]) + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
