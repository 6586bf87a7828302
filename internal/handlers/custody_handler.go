package handlers

import (
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/repository"
)

// CustodyHandler reports custodied fees and lets the collector withdraw them
type CustodyHandler struct {
	d           *dispatcher.Dispatcher
	asset       dispatcher.BurnAsset
	withdrawals repository.SettlementRepository
	logger      *logrus.Logger
}

func NewCustodyHandler(d *dispatcher.Dispatcher, asset dispatcher.BurnAsset, withdrawals repository.SettlementRepository, logger *logrus.Logger) *CustodyHandler {
	return &CustodyHandler{d: d, asset: asset, withdrawals: withdrawals, logger: logger}
}

// Get GET /api/custody?token=. The custodian's on-chain balance is only
// reported for the burn token.
func (h *CustodyHandler) Get(c *gin.Context) {
	opts := h.d.Options()
	token := opts.BurnToken
	if q := c.Query("token"); q != "" {
		var ok bool
		if token, ok = parseAddress(c, "token", q); !ok {
			return
		}
	}

	ledger := h.d.Ledger()
	resp := dto.CustodyResponse{
		Token:     token.Hex(),
		Policy:    string(opts.Policy),
		Collector: h.d.Roles().Collector().Hex(),
		HeldFees:  ledger.HeldFees(token).String(),
		InFlight:  ledger.InFlight(token).String(),
		Frozen:    ledger.Frozen(token).String(),
	}
	if token == opts.BurnToken && h.asset != nil {
		balance, err := h.asset.BalanceOf(c.Request.Context(), opts.Custodian)
		if err != nil {
			h.logger.WithError(err).Warn("Custodian balance unavailable")
		} else {
			resp.Balance = balance.String()
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": resp})
}

// Withdraw POST /api/admin/fees/withdraw, collector only
func (h *CustodyHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	caller := mustCaller(c)
	token := h.d.Options().BurnToken
	var (
		amount *big.Int
		err    error
	)
	if req.Token == "" || common.HexToAddress(req.Token) == token {
		amount, err = h.d.WithdrawFees(c.Request.Context(), caller)
	} else {
		var ok bool
		if token, ok = parseAddress(c, "token", req.Token); !ok {
			return
		}
		amount, err = h.d.WithdrawTokenFees(c.Request.Context(), caller, token)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.WithdrawResponse{Success: true, Token: token.Hex(), Amount: amount.String()})
}

// ListWithdrawals GET /api/custody/withdrawals
func (h *CustodyHandler) ListWithdrawals(c *gin.Context) {
	page, limit := pageParams(c)
	rows, total, err := h.withdrawals.ListWithdrawals(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list withdrawals")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list withdrawals"})
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Success: true, Data: rows, Total: total, Page: page, Limit: limit})
}
