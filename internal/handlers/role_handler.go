package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dto"
)

// RoleHandler exposes the owner, fee updater and collector roles
type RoleHandler struct {
	roles *dispatcher.RoleRegistry
}

func NewRoleHandler(roles *dispatcher.RoleRegistry) *RoleHandler {
	return &RoleHandler{roles: roles}
}

// Get GET /api/roles
func (h *RoleHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.roles.State()})
}

// Assign PUT /api/admin/roles/:role, owner only
func (h *RoleHandler) Assign(c *gin.Context) {
	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	holder, ok := parseAddress(c, "holder", req.Holder)
	if !ok {
		return
	}

	role := dispatcher.Role(c.Param("role"))
	if err := h.roles.Assign(c.Request.Context(), mustCaller(c), role, holder); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": h.roles.State()})
}
