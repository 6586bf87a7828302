package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/auth"
)

// CallerKey is the gin context key holding the authenticated common.Address
const CallerKey = "caller"

// AuthMiddleware resolves the caller from a bearer token
type AuthMiddleware struct {
	logger *logrus.Logger
	tokens *auth.TokenIssuer
}

func NewAuthMiddleware(logger *logrus.Logger, tokens *auth.TokenIssuer) *AuthMiddleware {
	return &AuthMiddleware{logger: logger, tokens: tokens}
}

// RequireAuth rejects requests without a valid token.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code, msg := bearerToken(c)
		if code != "" {
			a.reject(c, code, msg, nil)
			return
		}

		claims, err := a.tokens.Validate(tokenString)
		if err != nil {
			a.reject(c, "INVALID_TOKEN", "Invalid or expired token", err)
			return
		}
		caller, _ := claims.Caller()
		c.Set(CallerKey, caller)

		a.logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"caller": caller.Hex(),
		}).Debug("JWT auth success")
		c.Next()
	}
}

// OptionalAuth sets the caller when a valid token is present and never
// rejects.
func (a *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, code, _ := bearerToken(c)
		if code == "" {
			if claims, err := a.tokens.Validate(tokenString); err == nil {
				caller, _ := claims.Caller()
				c.Set(CallerKey, caller)
			}
		}
		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, code, msg string, err error) {
	fields := logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	a.logger.WithFields(fields).Warn("JWT auth failed")

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   msg,
		"code":    code,
	})
}

// bearerToken also accepts a token query parameter, which browsers need for
// websocket upgrades.
func bearerToken(c *gin.Context) (token, code, msg string) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query("token"); q != "" {
			return q, "", ""
		}
		return "", "MISSING_AUTH_HEADER", "Authentication required"
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", "INVALID_AUTH_FORMAT", "Authorization header must be in format: Bearer <token>"
	}
	token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", "EMPTY_TOKEN", "Empty token"
	}
	return token, "", ""
}

// Caller returns the authenticated address set by RequireAuth.
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}
