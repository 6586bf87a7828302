package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/repository"
)

// TransferHandler submits transfers and serves the settlement history
type TransferHandler struct {
	d           *dispatcher.Dispatcher
	settlements repository.SettlementRepository
	logger      *logrus.Logger
}

func NewTransferHandler(d *dispatcher.Dispatcher, settlements repository.SettlementRepository, logger *logrus.Logger) *TransferHandler {
	return &TransferHandler{d: d, settlements: settlements, logger: logger}
}

// Submit POST /api/transfers
func (h *TransferHandler) Submit(c *gin.Context) {
	var body dto.TransferRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	req, err := body.ToDispatcher()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	s, err := h.d.Transfer(c.Request.Context(), mustCaller(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": dto.FromSettlement(s)})
}

// List GET /api/settlements?caller=&route=&destination_domain=&page=&limit=
func (h *TransferHandler) List(c *gin.Context) {
	filter := repository.SettlementFilter{
		Caller: c.Query("caller"),
		Route:  c.Query("route"),
	}
	if v := c.Query("destination_domain"); v != "" {
		d, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			badRequest(c, "invalid destination_domain")
			return
		}
		domain := uint32(d)
		filter.DestinationDomain = &domain
	}
	page, limit := pageParams(c)

	rows, total, err := h.settlements.List(c.Request.Context(), filter, page, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list settlements")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list settlements"})
		return
	}
	c.JSON(http.StatusOK, dto.ListResponse{Success: true, Data: rows, Total: total, Page: page, Limit: limit})
}

// Get GET /api/settlements/:id
func (h *TransferHandler) Get(c *gin.Context) {
	row, err := h.settlements.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if notFound(c, err) {
			return
		}
		h.logger.WithError(err).Error("Failed to load settlement")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to load settlement"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": row})
}
