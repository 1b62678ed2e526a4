package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/kevobebop/kindmind/internal/billing/domain"
)

func (s *Server) HandleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, billingdomain.ErrInvalidPayload)
		return
	}

	event, err := s.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, billingdomain.ErrEventIgnored) {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		AbortWithError(c, err)
		return
	}

	if err := s.reconciler.Handle(c.Request.Context(), event); err != nil {
		// A redelivered event that already went through must be acked,
		// otherwise the provider keeps retrying forever.
		if errors.Is(err, billingdomain.ErrEventProcessed) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
