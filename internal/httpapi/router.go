package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"invest-ledger-go/internal/api"
	"invest-ledger-go/internal/models"
	"invest-ledger-go/internal/reconcile"
	"invest-ledger-go/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler serves read-only views of the ledger for operators.
type Handler struct {
	accounts   *api.AccountService
	reconciler *reconcile.Reconciler
}

func NewHandler(accounts *api.AccountService, reconciler *reconcile.Reconciler) *Handler {
	return &Handler{accounts: accounts, reconciler: reconciler}
}

type accountResponse struct {
	Account      *models.Account `json:"account"`
	Available    decimal.Decimal `json:"available"`
	Withdrawable decimal.Decimal `json:"withdrawable"`
}

type reconcileResponse struct {
	Discrepancies int                          `json:"discrepancies"`
	Entries       []models.ReconciliationEntry `json:"entries"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func SetupRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(zap.L()))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.Health)

	r.Route("/accounts/{userID}", func(r chi.Router) {
		r.Get("/", h.GetAccount)
		r.Get("/transactions", h.ListTransactions)
	})

	r.Get("/reconcile", h.Reconcile)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.HealthCheck(r.Context()); err != nil {
		zap.L().Error("Health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "database unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userID")

	account, err := h.accounts.Account(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}
	withdrawable, err := h.accounts.Withdrawable(r.Context(), userId)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		Account:      account,
		Available:    account.Available(),
		Withdrawable: withdrawable,
	})
}

// ListTransactions accepts optional limit and type query parameters.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userId := chi.URLParam(r, "userID")
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}

	var typeFilter models.TxType
	if raw := query.Get("type"); raw != "" {
		t, err := models.ParseTxType(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		typeFilter = t
	}

	if _, err := h.accounts.Account(r.Context(), userId); err != nil {
		writeError(w, err)
		return
	}

	txs, err := h.accounts.History(r.Context(), userId, limit, typeFilter)
	if err != nil {
		writeError(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	entries, err := h.reconciler.Report(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := reconcileResponse{Entries: entries}
	for _, e := range entries {
		if e.Discrepancy {
			resp.Discrepancies++
		}
	}
	if resp.Entries == nil {
		resp.Entries = []models.ReconciliationEntry{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrPersistence):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
