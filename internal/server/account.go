package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type accountCreatedRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (s *Server) HandleAccountCreated(c *gin.Context) {
	var req accountCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.provisioner.Provision(c.Request.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.Email))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
