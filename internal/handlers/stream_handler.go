package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/events"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
)

// StreamHandler upgrades GET /ws/settlements to a settlement stream
type StreamHandler struct {
	hub      *events.Hub
	logger   *logrus.Logger
	upgrader websocket.Upgrader
}

func NewStreamHandler(hub *events.Hub, logger *logrus.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Serve streams the authenticated caller's settlements. With ?all=true and
// no session it streams every settlement and withdrawal.
func (h *StreamHandler) Serve(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok && c.Query("all") != "true" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required", "code": "UNAUTHORIZED"})
		return
	}
	if !ok {
		caller = common.Address{}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	h.hub.Serve(c.Request.Context(), conn, caller)
}
