package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevobebop/kindmind/internal/authctx"
	checkoutdomain "github.com/kevobebop/kindmind/internal/checkout/domain"
)

func (s *Server) HandleBeginCheckout(c *gin.Context) {
	user, ok := authctx.UserFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	sessionID, err := s.checkoutSvc.BeginCheckout(c.Request.Context(), checkoutdomain.BeginCheckoutRequest{
		UserID: user.ID,
		Email:  user.Email,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": sessionID})
}
