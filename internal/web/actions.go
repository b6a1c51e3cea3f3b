package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/riskvault/internal/domain"
	"github.com/vadiminshakov/riskvault/internal/identity"
	"github.com/vadiminshakov/riskvault/internal/vault"
)

// Signed actions.
const (
	ActionDeposit       = "deposit"
	ActionWithdraw      = "withdraw"
	ActionManualTrigger = "manual_trigger"
	ActionApprove       = "approve"
	ActionMint          = "mint"
	adminActionPrefix   = "set_"
)

// AdminAction is the signed action name for the /admin/{field} endpoint.
func AdminAction(field string) string { return adminActionPrefix + field }

type amountRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type adminRequest struct {
	Value        string  `json:"value"`
	HighBps      *uint32 `json:"high_bps"`
	LowBps       *uint32 `json:"low_bps"`
	LowUpperBps  *uint32 `json:"low_upper_bps"`
	HighLowerBps *uint32 `json:"high_lower_bps"`
}

type executeResponse struct {
	Allocation vault.AllocationInfo `json:"allocation"`
	Rebalance  vault.RebalanceInfo  `json:"rebalance"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, ActionDeposit, s.vault.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleLedgerOp(w, r, ActionWithdraw, s.vault.Withdraw)
}

func (s *Server) handleLedgerOp(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	op func(ctx context.Context, caller common.Address, amount *uint256.Int) (domain.Account, error),
) {
	caller, body, err := s.authenticate(w, r, action)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acc, err := op(r.Context(), caller, &amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAccountResponse(acc))
}

// handleRefresh is permissionless: the cooldown is the only gate.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	info, err := s.vault.RefreshVolatility(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePerformUpkeep is the permissionless write half of the automation interface.
func (s *Server) handlePerformUpkeep(w http.ResponseWriter, r *http.Request) {
	if _, err := s.vault.Execute(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExecuted(w)
}

func (s *Server) handleManualTrigger(w http.ResponseWriter, r *http.Request) {
	caller, _, err := s.authenticate(w, r, ActionManualTrigger)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.vault.ManualTrigger(r.Context(), caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExecuted(w)
}

func (s *Server) writeExecuted(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, executeResponse{
		Allocation: s.vault.AllocationInfo(),
		Rebalance:  s.vault.RebalanceInfo(),
	})
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request) {
	field := r.PathValue("field")
	caller, body, err := s.authenticate(w, r, AdminAction(field))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req adminRequest
	if err := decodeBody(body, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.applyAdmin(caller, field, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.vault.ConfigInfo())
}

func (s *Server) applyAdmin(caller common.Address, field string, req adminRequest) error {
	switch field {
	case vault.FieldBaseLimit:
		limit, err := domain.ParseAmount(req.Value)
		if err != nil {
			return err
		}
		return s.vault.SetBaseLimit(caller, &limit)
	case vault.FieldPriceThreshold:
		price, err := domain.ParsePrice(req.Value)
		if err != nil {
			return errors.Wrap(errBadRequest, err.Error())
		}
		return s.vault.SetPriceThreshold(caller, price)
	case vault.FieldMultipliers:
		if req.HighBps == nil || req.LowBps == nil {
			return errors.Wrap(errBadRequest, "high_bps and low_bps are required")
		}
		return s.vault.SetMultipliers(caller, domain.Bps(*req.HighBps), domain.Bps(*req.LowBps))
	case vault.FieldRebalanceThreshold:
		bps, err := strconv.ParseUint(req.Value, 10, 32)
		if err != nil {
			return errors.Wrapf(errBadRequest, "invalid bps %q", req.Value)
		}
		return s.vault.SetRebalanceThreshold(caller, domain.Bps(bps))
	case vault.FieldMinInterval:
		d, err := time.ParseDuration(req.Value)
		if err != nil {
			return errors.Wrap(errBadRequest, err.Error())
		}
		return s.vault.SetMinInterval(caller, d)
	case vault.FieldMaxHistoryLength:
		n, err := strconv.Atoi(req.Value)
		if err != nil {
			return errors.Wrapf(errBadRequest, "invalid length %q", req.Value)
		}
		return s.vault.SetMaxHistoryLength(caller, n)
	case vault.FieldUpdateCooldown:
		d, err := time.ParseDuration(req.Value)
		if err != nil {
			return errors.Wrap(errBadRequest, err.Error())
		}
		return s.vault.SetUpdateCooldown(caller, d)
	case vault.FieldAllocationBands:
		if req.LowUpperBps == nil || req.HighLowerBps == nil {
			return errors.Wrap(errBadRequest, "low_upper_bps and high_lower_bps are required")
		}
		return s.vault.SetAllocationBands(caller, domain.AllocationBands{
			LowUpperBps:  domain.Bps(*req.LowUpperBps),
			HighLowerBps: domain.Bps(*req.HighLowerBps),
		})
	case vault.FieldOwner:
		owner, err := identity.ParseAddress(req.Value)
		if err != nil {
			return errors.Wrap(errBadRequest, err.Error())
		}
		return s.vault.TransferOwnership(caller, owner)
	default:
		return errors.Wrapf(errBadRequest, "unknown setting %q", field)
	}
}

// handleApprove lets the signer allow account (the vault by default) to pull amount.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "token ledger"))
		return
	}
	caller, req, err := s.transferRequest(w, r, ActionApprove)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	spender := s.vault.Address()
	if req.Account != "" {
		if spender, err = identity.ParseAddress(req.Account); err != nil {
			s.writeError(w, r, errors.Wrap(errBadRequest, err.Error()))
			return
		}
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Approve(caller, spender, &amount); err != nil {
		s.writeError(w, r, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	allowance := s.ledger.Allowance(caller, spender)
	writeJSON(w, http.StatusOK, map[string]string{
		"owner":     caller.Hex(),
		"spender":   spender.Hex(),
		"allowance": allowance.Dec(),
	})
}

// handleMint issues tokens. Only the vault owner may mint.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, r, errors.Wrap(errUnavailable, "token ledger"))
		return
	}
	caller, req, err := s.transferRequest(w, r, ActionMint)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if caller != s.vault.Owner() {
		s.writeError(w, r, errors.Wrapf(domain.ErrUnauthorized, "%s may not mint", caller.Hex()))
		return
	}
	to, err := identity.ParseAddress(req.Account)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.Mint(to, &amount); err != nil {
		s.writeError(w, r, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	balance, err := s.ledger.BalanceOf(r.Context(), to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"account": to.Hex(), "balance": balance.Dec()})
}

func (s *Server) transferRequest(w http.ResponseWriter, r *http.Request, action string) (common.Address, transferRequest, error) {
	caller, body, err := s.authenticate(w, r, action)
	if err != nil {
		return common.Address{}, transferRequest{}, err
	}
	var req transferRequest
	if err := decodeBody(body, &req); err != nil {
		return common.Address{}, transferRequest{}, err
	}
	return caller, req, nil
}
