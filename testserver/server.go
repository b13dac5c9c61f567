// Package testserver provides an in-process fake of the Pharos task API for
// tests and local runs.
package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Points awarded by the fake service.
const (
	CheckInPoints = 10
	FaucetPoints  = 5
	VerifyPoints  = 20
)

type user struct {
	id          int64
	checkedIn   bool
	claimed     bool
	taskPoints  int64
	totalPoints int64
}

// Server is a fake Pharos API. Logins must carry a valid personal-sign
// signature of the configured message; every other endpoint requires the
// issued bearer token.
type Server struct {
	mux       *http.ServeMux
	requestID atomic.Int64
	message   string

	mu              sync.Mutex
	failLogin       map[string]bool
	faucetDisabled  bool
	rejectVerify    bool
	sessions        map[string]string // token -> address
	users           map[string]*user
	calls           map[string]int
	lastInviteCodes []string
}

// Option customizes a Server.
type Option func(*Server)

// WithLoginMessage sets the message logins must sign. Default "pharos".
func WithLoginMessage(msg string) Option {
	return func(s *Server) { s.message = msg }
}

// WithFailingLogin makes logins for the given addresses fail.
func WithFailingLogin(addresses ...string) Option {
	return func(s *Server) {
		for _, a := range addresses {
			s.failLogin[strings.ToLower(a)] = true
		}
	}
}

// WithFaucetDisabled reports the faucet as unavailable to everyone.
func WithFaucetDisabled() Option {
	return func(s *Server) { s.faucetDisabled = true }
}

// WithRejectedVerification answers every verification with verified=false.
func WithRejectedVerification() Option {
	return func(s *Server) { s.rejectVerify = true }
}

// NewServer creates a new fake server with all endpoints configured.
func NewServer(opts ...Option) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		message:   "pharos",
		failLogin: make(map[string]bool),
		sessions:  make(map[string]string),
		users:     make(map[string]*user),
		calls:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// InviteCodes returns the invite codes of all login attempts in order.
func (s *Server) InviteCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastInviteCodes...)
}

// Points returns the task and total points of address.
func (s *Server) Points(address string) (task, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(address)]; ok {
		return u.taskPoints, u.totalPoints
	}
	return 0, 0
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /user/login", s.count(s.handleLogin))
	s.mux.HandleFunc("POST /sign/in", s.count(s.authed(s.handleCheckIn)))
	s.mux.HandleFunc("GET /faucet/status", s.count(s.authed(s.handleFaucetStatus)))
	s.mux.HandleFunc("POST /faucet/daily", s.count(s.authed(s.handleFaucetClaim)))
	s.mux.HandleFunc("GET /user/profile", s.count(s.authed(s.handleProfile)))
	s.mux.HandleFunc("POST /task/verify", s.count(s.authed(s.handleVerify)))
}

func (s *Server) count(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()
		next(w, r)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

// authed resolves the bearer token to its user. The token must belong to the
// address in the query.
func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		address := strings.ToLower(r.URL.Query().Get("address"))

		s.mu.Lock()
		owner, ok := s.sessions[token]
		u := s.users[owner]
		s.mu.Unlock()

		if !ok || owner != address {
			writeEnvelope(w, http.StatusUnauthorized, 401, "unauthorized", nil)
			return
		}
		next(w, r, u)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	address := strings.ToLower(q.Get("address"))

	s.mu.Lock()
	s.lastInviteCodes = append(s.lastInviteCodes, q.Get("invite_code"))
	fail := s.failLogin[address]
	s.mu.Unlock()

	if fail {
		writeEnvelope(w, http.StatusOK, 1, "login failed", nil)
		return
	}
	if !s.validSignature(address, q.Get("signature")) {
		writeEnvelope(w, http.StatusOK, 1, "invalid signature", nil)
		return
	}

	id := s.requestID.Add(1)
	token := fmt.Sprintf("jwt-%d-%s", id, address[len(address)-6:])

	s.mu.Lock()
	s.sessions[token] = address
	if _, ok := s.users[address]; !ok {
		s.users[address] = &user{id: id}
	}
	s.mu.Unlock()

	writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"jwt": token})
}

// validSignature recovers the signer of the personal-sign signature and
// compares it to address.
func (s *Server) validSignature(address, signature string) bool {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(s.message)), sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), address)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.checkedIn {
		writeEnvelope(w, http.StatusOK, 1, "already signed in today", nil)
		return
	}
	u.checkedIn = true
	u.taskPoints += CheckInPoints
	u.totalPoints += CheckInPoints
	writeEnvelope(w, http.StatusOK, 0, "ok", nil)
}

func (s *Server) handleFaucetStatus(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	able := !s.faucetDisabled && !u.claimed
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"is_able_to_faucet": able})
}

func (s *Server) handleFaucetClaim(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faucetDisabled || u.claimed {
		writeEnvelope(w, http.StatusOK, 1, "faucet already claimed", nil)
		return
	}
	u.claimed = true
	u.totalPoints += FaucetPoints
	writeEnvelope(w, http.StatusOK, 0, "ok", nil)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, u *user) {
	s.mu.Lock()
	info := map[string]any{
		"ID":          u.id,
		"TaskPoints":  u.taskPoints,
		"TotalPoints": u.totalPoints,
	}
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"user_info": info})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request, u *user) {
	q := r.URL.Query()
	if q.Get("task_id") == "" || q.Get("tx_hash") == "" {
		writeEnvelope(w, http.StatusOK, 1, "missing task_id or tx_hash", nil)
		return
	}

	s.mu.Lock()
	verified := !s.rejectVerify
	if verified {
		u.taskPoints += VerifyPoints
		u.totalPoints += VerifyPoints
	}
	s.mu.Unlock()
	writeEnvelope(w, http.StatusOK, 0, "ok", map[string]any{"verified": verified})
}

func writeEnvelope(w http.ResponseWriter, status int, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}
