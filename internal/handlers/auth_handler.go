package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/cache"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
)

// AuthHandler issues caller tokens for signed login messages
type AuthHandler struct {
	nonces cache.NonceStore
	tokens *auth.TokenIssuer
	logger *logrus.Logger
}

func NewAuthHandler(nonces cache.NonceStore, tokens *auth.TokenIssuer, logger *logrus.Logger) *AuthHandler {
	return &AuthHandler{nonces: nonces, tokens: tokens, logger: logger}
}

// Nonce POST /api/auth/nonce
func (h *AuthHandler) Nonce(c *gin.Context) {
	var req dto.NonceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	address, ok := parseAddress(c, "address", req.Address)
	if !ok {
		return
	}

	nonce, err := h.nonces.Issue(c.Request.Context(), address)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue login nonce")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "nonce store unavailable"})
		return
	}

	c.JSON(http.StatusOK, dto.NonceResponse{
		Success: true,
		Nonce:   nonce,
		Message: auth.LoginMessage(address, nonce),
	})
}

// Login POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	address, ok := parseAddress(c, "address", req.Address)
	if !ok {
		return
	}

	live, err := h.nonces.Consume(c.Request.Context(), address, req.Nonce)
	if err != nil {
		h.logger.WithError(err).Error("Failed to consume login nonce")
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "nonce store unavailable"})
		return
	}
	if !live {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown or expired nonce", "code": "INVALID_NONCE"})
		return
	}
	if err := auth.VerifyLogin(address, req.Nonce, req.Signature); err != nil {
		h.logger.WithFields(logrus.Fields{"address": address.Hex(), "error": err.Error()}).Warn("Login signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "signature verification failed", "code": "INVALID_SIGNATURE"})
		return
	}

	token, expires, err := h.tokens.Issue(address)
	if err != nil {
		h.logger.WithError(err).Error("Failed to issue token")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "token generation failed"})
		return
	}

	h.logger.WithField("address", address.Hex()).Info("✅ Caller logged in")
	c.JSON(http.StatusOK, dto.LoginResponse{Success: true, Token: token, ExpiresAt: expires.Unix()})
}
