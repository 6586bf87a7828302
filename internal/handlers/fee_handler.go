package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
)

// FeeHandler reads and updates the per-destination fee schedule
type FeeHandler struct {
	d *dispatcher.Dispatcher
}

func NewFeeHandler(d *dispatcher.Dispatcher) *FeeHandler {
	return &FeeHandler{d: d}
}

func ruleResponse(domain uint32, r dispatcher.FeeRule) dto.FeeRuleResponse {
	return dto.FeeRuleResponse{
		DestinationDomain: domain,
		PercFeeBips:       r.PercFeeBips,
		FlatFee:           dto.BigString(r.FlatFee),
		Initialized:       r.Initialized,
	}
}

// List GET /api/fees
func (h *FeeHandler) List(c *gin.Context) {
	domains := h.d.Fees().Domains()
	sort.Slice(domains, func(i, j int) bool { return domains[i] < domains[j] })

	rules := make([]dto.FeeRuleResponse, 0, len(domains))
	for _, d := range domains {
		rules = append(rules, ruleResponse(d, h.d.Fees().GetFee(d)))
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"max_perc_fee_bips": h.d.Fees().MaxPercFeeBips(),
		"data":              rules,
	})
}

// Get GET /api/fees/:domain. An unconfigured domain returns the zero rule.
func (h *FeeHandler) Get(c *gin.Context) {
	domain, ok := parseDomain(c, "domain")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": ruleResponse(domain, h.d.Fees().GetFee(domain))})
}

// Quote GET /api/fees/:domain/quote?amount=
func (h *FeeHandler) Quote(c *gin.Context) {
	domain, ok := parseDomain(c, "domain")
	if !ok {
		return
	}
	amount, err := dto.ParseBig("amount", c.Query("amount"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	fee, net, err := h.d.QuoteFee(amount, domain)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": dto.QuoteResponse{
		Amount:            amount.String(),
		DestinationDomain: domain,
		Fee:               fee.String(),
		NetAmount:         net.String(),
	}})
}

// Set PUT /api/admin/fees/:domain, fee updater only
func (h *FeeHandler) Set(c *gin.Context) {
	domain, ok := parseDomain(c, "domain")
	if !ok {
		return
	}
	var req dto.SetFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	flat := "0"
	if req.FlatFee != "" {
		flat = req.FlatFee
	}
	flatFee, err := dto.ParseBig("flat_fee", flat)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.d.Fees().SetFee(c.Request.Context(), mustCaller(c), domain, req.PercFeeBips, flatFee); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": ruleResponse(domain, h.d.Fees().GetFee(domain))})
}
