package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/middleware"
)

var kindStatus = map[dispatcher.ErrorKind]int{
	dispatcher.KindValidation:    http.StatusBadRequest,
	dispatcher.KindAuthorization: http.StatusForbidden,
	dispatcher.KindPolicy:        http.StatusUnprocessableEntity,
	dispatcher.KindConfiguration: http.StatusUnprocessableEntity,
	dispatcher.KindDependency:    http.StatusServiceUnavailable,
	dispatcher.KindCollaborator:  http.StatusBadGateway,
	dispatcher.KindInternal:      http.StatusInternalServerError,
	dispatcher.KindPending:       http.StatusAccepted,
}

// StatusFor maps a dispatcher error to an HTTP status.
func StatusFor(err error) int {
	if status, ok := kindStatus[dispatcher.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	body := gin.H{
		"success": false,
		"error":   err.Error(),
		"code":    string(dispatcher.KindOf(err)),
	}
	// Submitted but unconfirmed: the hash is what an operator reconciles with.
	if tx, ok := dispatcher.PendingTx(err); ok {
		body["tx_hash"] = tx.Hex()
	}
	c.JSON(StatusFor(err), body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
		"code":    string(dispatcher.KindValidation),
	})
}

func notFound(c *gin.Context, err error) bool {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	return true
}

// mustCaller is only used behind RequireAuth.
func mustCaller(c *gin.Context) common.Address {
	caller, _ := middleware.Caller(c)
	return caller
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func parseDomain(c *gin.Context, name string) (uint32, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint32(v), true
}

func parseAddress(c *gin.Context, field, value string) (common.Address, bool) {
	if !common.IsHexAddress(value) {
		badRequest(c, field+": not an address")
		return common.Address{}, false
	}
	return common.HexToAddress(value), true
}
