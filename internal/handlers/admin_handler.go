package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
)

// MessengerFactory binds messenger addresses to live collaborators. The evm
// and simulated modes each provide one.
type MessengerFactory interface {
	Messenger(address common.Address) (dispatcher.Messenger, error)
	MetadataMessenger(address common.Address) (dispatcher.MetadataMessenger, error)
}

// AdminHandler exposes the owner-only configuration operations
type AdminHandler struct {
	d       *dispatcher.Dispatcher
	factory MessengerFactory
	logger  *logrus.Logger
}

func NewAdminHandler(d *dispatcher.Dispatcher, factory MessengerFactory, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{d: d, factory: factory, logger: logger}
}

// FastTokens GET /api/fast-tokens
func (h *AdminHandler) FastTokens(c *gin.Context) {
	tokens := h.d.FastTransferTokens()
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Hex())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}

// SetFastToken PUT /api/admin/fast-tokens/:token
func (h *AdminHandler) SetFastToken(c *gin.Context) {
	token, ok := parseAddress(c, "token", c.Param("token"))
	if !ok {
		return
	}
	var req dto.FastTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	caller := mustCaller(c)
	if err := h.d.SetFastTransferToken(c.Request.Context(), caller, token, req.Allowed); err != nil {
		respondError(c, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"token":   token.Hex(),
		"allowed": req.Allowed,
		"owner":   caller.Hex(),
	}).Info("Fast transfer allow-list updated")
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token.Hex(), "allowed": req.Allowed})
}

// SetMessengers PUT /api/admin/messengers
func (h *AdminHandler) SetMessengers(c *gin.Context) {
	var req dto.MessengersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Messenger == "" && req.MetadataMessenger == "" {
		badRequest(c, "nothing to update")
		return
	}

	caller := mustCaller(c)
	if req.Messenger != "" {
		addr, ok := parseAddress(c, "messenger", req.Messenger)
		if !ok {
			return
		}
		m, err := h.factory.Messenger(addr)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := h.d.SetMessenger(caller, m); err != nil {
			respondError(c, err)
			return
		}
	}
	if req.MetadataMessenger != "" {
		addr, ok := parseAddress(c, "metadata_messenger", req.MetadataMessenger)
		if !ok {
			return
		}
		m, err := h.factory.MetadataMessenger(addr)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := h.d.SetMetadataMessenger(caller, m); err != nil {
			respondError(c, err)
			return
		}
	}

	h.logger.WithField("owner", caller.Hex()).Info("Messengers updated")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
