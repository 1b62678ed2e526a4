package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevobebop/kindmind/internal/authctx"
)

func (s *Server) HandleGetMe(c *gin.Context) {
	user, ok := authctx.UserFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	identity, err := s.identitySvc.Get(c.Request.Context(), user.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":             identity.UserID,
		"role":                string(identity.Role),
		"subscription_status": string(identity.SubscriptionStatus),
	})
}
