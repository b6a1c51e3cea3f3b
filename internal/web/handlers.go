package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type accountResponse struct {
	Account     string `json:"account"`
	Deposited   string `json:"deposited"`
	LastDeposit uint64 `json:"last_deposit"`
}

func newAccountResponse(acc domain.Account) accountResponse {
	return accountResponse{
		Account:     acc.Owner.Hex(),
		Deposited:   acc.Deposited.Dec(),
		LastDeposit: domain.UnixSeconds(acc.LastDeposit),
	}
}

type upkeepResponse struct {
	UpkeepNeeded bool   `json:"upkeep_needed"`
	Reason       string `json:"reason"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.vault.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVolatility(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.VolatilityInfo())
}

func (s *Server) handleRebalance(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.RebalanceInfo())
}

func (s *Server) handleAllocation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.AllocationInfo())
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.ConfigInfo())
}

func (s *Server) handlePrices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.vault.PriceHistory())
}

func (s *Server) handleAccounts(w http.ResponseWriter, _ *http.Request) {
	accounts := s.vault.Accounts()
	out := make([]accountResponse, len(accounts))
	for i, acc := range accounts {
		out[i] = newAccountResponse(acc)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "analytics"))
		return
	}
	report, err := s.analyzer.Analyze(s.vault.PriceHistory())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	info, err := s.vault.UserInfo(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAccountHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "history recorder"))
		return
	}
	account, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.history.AccountHistory(r.Context(), account, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRebalances(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "history recorder"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.history.RecentRebalances(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleCheckUpkeep is the read-only half of the automation interface.
func (s *Server) handleCheckUpkeep(w http.ResponseWriter, _ *http.Request) {
	d := s.vault.Eligibility()
	writeJSON(w, http.StatusOK, upkeepResponse{UpkeepNeeded: d.Eligible, Reason: d.Reason})
}

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "token ledger"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"symbol": s.ledger.Symbol(),
		"vault":  s.vault.Address().Hex(),
		"owner":  s.vault.Owner().Hex(),
	})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "token ledger"))
		return
	}
	account, err := pathAddress(r, "address")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	balance, err := s.ledger.BalanceOf(r.Context(), account)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": account.Hex(), "balance": balance.Dec()})
}

func (s *Server) handleTokenAllowance(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "token ledger"))
		return
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender, err := pathAddress(r, "spender")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	allowance := s.ledger.Allowance(owner, spender)
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": allowance.Dec(),
	})
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	addr, err := identity.ParseAddress(r.PathValue(name))
	if err != nil {
		return common.Address{}, errors.Wrap(errBadRequest, err.Error())
	}
	return addr, nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.Wrapf(errBadRequest, "invalid limit %q", raw)
	}
	return min(limit, maxHistoryLimit), nil
}
