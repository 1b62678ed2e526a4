package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kevobebop/kindmind/internal/authctx"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

func (s *Server) HandleSetRole(c *gin.Context) {
	actor, ok := authctx.UserFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	targetID := strings.TrimSpace(c.Param("id"))
	if targetID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	role := identitydomain.Role(strings.TrimSpace(req.Role))
	if err := s.claims.SetRole(c.Request.Context(), actor.ID, targetID, role); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "role": string(role)})
}
