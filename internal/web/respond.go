package web

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/services/analytics"
)

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("not configured")
)

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	NextUpdate uint64 `json:"next_update,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	resp := errorResponse{Error: code, Message: err.Error()}

	var cooldown *domain.CooldownError
	if errors.As(err, &cooldown) {
		resp.NextUpdate = domain.UnixSeconds(cooldown.NextUpdate)
		wait := math.Ceil(cooldown.NextUpdate.Sub(s.now()).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(wait))))
	}
	var notEligible *domain.NotEligibleError
	if errors.As(err, &notEligible) {
		resp.Reason = notEligible.Reason
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// classify maps an error to an HTTP status and a stable reason code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errUnavailable):
		return http.StatusNotImplemented, "not_configured"
	case errors.Is(err, identity.ErrInvalidSignature), errors.Is(err, identity.ErrExpired):
		return http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, identity.ErrReplayed):
		return http.StatusConflict, "replayed"
	case errors.Is(err, analytics.ErrNotEnoughData):
		return http.StatusConflict, "not_enough_data"
	}

	code := domain.Code(err)
	switch code {
	case "invalid_amount", "invalid_config":
		return http.StatusBadRequest, code
	case "unauthorized":
		return http.StatusForbidden, code
	case "insufficient_balance", "deposit_limit_exceeded", "rebalance_not_eligible":
		return http.StatusConflict, code
	case "transfer_failed":
		return http.StatusUnprocessableEntity, code
	case "cooldown_active":
		return http.StatusTooManyRequests, code
	case "oracle_unavailable":
		return http.StatusServiceUnavailable, code
	default:
		return http.StatusInternalServerError, code
	}
}
