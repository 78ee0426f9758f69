package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trvault/audit"
	"trvault/crypto"
	"trvault/native/treasury"
	"trvault/observability/metrics"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the treasury engine over HTTP. Mutating routes settle
// through the engine and append to the audit journal; queries read the ledger
// directly.
type Server struct {
	engine  *treasury.Engine
	journal *audit.Journal
	logger  *slog.Logger
	limiter *RateLimiter
}

func NewServer(engine *treasury.Engine, journal *audit.Journal, logger *slog.Logger, limit RateLimit) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:  engine,
		journal: journal,
		logger:  logger,
		limiter: NewRateLimiter(limit),
	}
}

// Router assembles the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1/treasury", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Post("/borrow", s.borrow)
		r.Post("/borrow_max", s.borrowMax)
		r.Post("/repay", s.repay)
		r.Post("/repay_all", s.repayAll)
		r.Post("/positions/get", s.getPosition)
		r.Post("/topup", s.topUp)
		r.Get("/reserves/{token}", s.getReserve)
		r.Get("/history", s.history)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type borrowRequest struct {
	Strategy  string `json:"strategy"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type borrowResponse struct {
	Borrowed string `json:"borrowed"`
}

func (s *Server) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := crypto.DecodeAddress(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy address")
		return
	}
	recipient, err := crypto.DecodeAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	borrowed, err := s.engine.Borrow(strategy, req.Token, amount, recipient)
	s.audit(r, "borrow", req.Strategy, req.Token, req.Amount, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Treasury().ObserveBorrow(req.Token)
	s.observePosition(strategy, req.Strategy, req.Token)
	s.observeReserve(req.Token)
	writeJSON(w, http.StatusOK, borrowResponse{Borrowed: borrowed.Dec()})
}

type borrowMaxRequest struct {
	Strategy  string `json:"strategy"`
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
}

func (s *Server) borrowMax(w http.ResponseWriter, r *http.Request) {
	var req borrowMaxRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := crypto.DecodeAddress(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy address")
		return
	}
	recipient, err := crypto.DecodeAddress(req.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	borrowed, err := s.engine.BorrowMax(strategy, req.Token, recipient)
	s.audit(r, "borrow_max", req.Strategy, req.Token, "", err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Treasury().ObserveBorrow(req.Token)
	s.observePosition(strategy, req.Strategy, req.Token)
	s.observeReserve(req.Token)
	writeJSON(w, http.StatusOK, borrowResponse{Borrowed: borrowed.Dec()})
}

type repayRequest struct {
	Payer    string `json:"payer"`
	Strategy string `json:"strategy"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
}

func (s *Server) repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payer, err := crypto.DecodeAddress(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	strategy, err := crypto.DecodeAddress(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.engine.Repay(payer, strategy, req.Token, amount)
	s.audit(r, "repay", req.Strategy, req.Token, req.Amount, err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Treasury().ObserveRepay(req.Token)
	s.observePosition(strategy, req.Strategy, req.Token)
	s.observeReserve(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type repayAllRequest struct {
	Payer    string `json:"payer"`
	Strategy string `json:"strategy"`
	Token    string `json:"token"`
}

func (s *Server) repayAll(w http.ResponseWriter, r *http.Request) {
	var req repayAllRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payer, err := crypto.DecodeAddress(req.Payer)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	strategy, err := crypto.DecodeAddress(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy address")
		return
	}

	err = s.engine.RepayAll(payer, strategy, req.Token)
	s.audit(r, "repay_all", req.Strategy, req.Token, "", err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	metrics.Treasury().ObserveRepay(req.Token)
	s.observePosition(strategy, req.Strategy, req.Token)
	s.observeReserve(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "settled"})
}

type positionRequest struct {
	Strategy string `json:"strategy"`
	Token    string `json:"token"`
}

type positionResponse struct {
	Credit    string `json:"credit"`
	Debt      string `json:"debt"`
	Ceiling   string `json:"ceiling"`
	Enabled   bool   `json:"enabled"`
	Available string `json:"available"`
}

func (s *Server) getPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	strategy, err := crypto.DecodeAddress(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy address")
		return
	}

	pos, err := s.engine.StrategyPosition(strategy, req.Token)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	available, err := s.engine.AvailableToBorrow(strategy, req.Token)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Credit:    pos.Credit.Dec(),
		Debt:      pos.Debt.Dec(),
		Ceiling:   pos.Ceiling.Dec(),
		Enabled:   pos.Enabled,
		Available: available.Dec(),
	})
}

type topUpRequest struct {
	Token string `json:"token"`
}

func (s *Server) topUp(w http.ResponseWriter, r *http.Request) {
	var req topUpRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.engine.TopUpBuffer(req.Token)
	s.audit(r, "top_up", "", req.Token, "", err)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.observeReserve(req.Token)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reserveResponse struct {
	Token string `json:"token"`
	Local string `json:"local"`
	Total string `json:"total"`
}

func (s *Server) getReserve(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	local, err := s.engine.LocalBalance(token)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	total, err := s.engine.TotalAvailable(token)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reserveResponse{Token: token, Local: local.Dec(), Total: total.Dec()})
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "audit journal not configured")
		return
	}
	strategy := strings.TrimSpace(r.URL.Query().Get("strategy"))
	var (
		entries []audit.Entry
		err     error
	)
	if strategy != "" {
		entries, err = s.journal.StrategyHistory(r.Context(), strategy, 100)
	} else {
		entries, err = s.journal.Recent(r.Context(), 100)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) audit(r *http.Request, operation, strategy, token, amount string, opErr error) {
	outcome := "ok"
	if opErr != nil {
		outcome = opErr.Error()
		metrics.Treasury().ObserveRejection(rejectionReason(opErr))
	}
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Record(r.Context(), operation, strategy, token, amount, outcome); err != nil {
		s.logger.Error("audit record failed", "operation", operation, "err", err)
	}
}

func (s *Server) observePosition(strategy crypto.Address, strategyLabel, token string) {
	pos, err := s.engine.StrategyPosition(strategy, token)
	if err != nil {
		return
	}
	value, err := strconv.ParseFloat(pos.Debt.Dec(), 64)
	if err != nil {
		return
	}
	metrics.Treasury().SetOutstandingDebt(token, strategyLabel, value)
}

func (s *Server) observeReserve(token string) {
	local, err := s.engine.LocalBalance(token)
	if err != nil {
		return
	}
	value, err := strconv.ParseFloat(local.Dec(), 64)
	if err != nil {
		return
	}
	metrics.Treasury().SetLocalReserve(token, value)
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var breach *treasury.CeilingBreachedError
	if errors.As(err, &breach) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "ceiling breached",
			"available": breach.Available.Dec(),
			"requested": breach.Requested.Dec(),
		})
		return
	}
	var short *treasury.InsufficientBalanceError
	if errors.As(err, &short) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "insufficient balance",
			"available": short.Available.Dec(),
			"requested": short.Requested.Dec(),
		})
		return
	}
	switch {
	case errors.Is(err, treasury.ErrZeroAmount), errors.Is(err, treasury.ErrArithmeticOverflow), errors.Is(err, treasury.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, treasury.ErrNotEnabled), errors.Is(err, treasury.ErrNoIssuer):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, treasury.ErrPaused), errors.Is(err, treasury.ErrShutdown):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		s.logger.Error("treasury operation failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, treasury.ErrCeilingBreached):
		return "ceiling_breached"
	case errors.Is(err, treasury.ErrInsufficientFunds):
		return "insufficient_balance"
	case errors.Is(err, treasury.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, treasury.ErrPaused):
		return "paused"
	case errors.Is(err, treasury.ErrShutdown):
		return "shutdown"
	case errors.Is(err, treasury.ErrNotEnabled):
		return "not_enabled"
	default:
		return "other"
	}
}

func decodeRequest(r *http.Request, out interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, requestLimit)
	defer io.Copy(io.Discard, body)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, errors.New("invalid amount")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
