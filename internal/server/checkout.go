package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
)

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutdomain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkoutSvc.CreateSession(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.checkoutSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := order.Items()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                  order.ID.String(),
		"buyer_id":            order.BuyerID,
		"mode":                order.Mode,
		"currency":            order.Currency,
		"total_amount":        order.TotalAmount,
		"status":              order.Status,
		"line_items":          items,
		"external_session_id": order.ExternalSessionID,
		"external_payment_id": order.ExternalPaymentID,
		"created_at":          order.CreatedAt,
		"completed_at":        order.CompletedAt,
		"cancelled_at":        order.CancelledAt,
	})
}
