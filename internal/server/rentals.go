package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
)

const dateOnlyLayout = "2006-01-02"

type rentalResponse struct {
	ID                string  `json:"id"`
	MachineID         string  `json:"machine_id"`
	RenterID          string  `json:"renter_id"`
	OwnerID           string  `json:"owner_id"`
	StartDate         string  `json:"start_date"`
	EndDate           string  `json:"end_date"`
	DailyRate         int64   `json:"daily_rate"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	PaymentStatus     string  `json:"payment_status"`
	TotalAmount       *int64  `json:"total_amount,omitempty"`
	PlatformFee       *int64  `json:"platform_fee,omitempty"`
	OwnerPayout       *int64  `json:"owner_payout,omitempty"`
	FeeSchedule       *string `json:"fee_schedule,omitempty"`
	FeeRate           *string `json:"fee_rate,omitempty"`
	ExternalPaymentID *string `json:"external_payment_id,omitempty"`
}

func newRentalResponse(r rentaldomain.Rental) rentalResponse {
	return rentalResponse{
		ID:                r.ID.String(),
		MachineID:         r.MachineID,
		RenterID:          r.RenterID,
		OwnerID:           r.OwnerID,
		StartDate:         r.StartDate.Format(dateOnlyLayout),
		EndDate:           r.EndDate.Format(dateOnlyLayout),
		DailyRate:         r.DailyRate,
		Currency:          r.Currency,
		Status:            string(r.Status),
		PaymentStatus:     string(r.PaymentStatus),
		TotalAmount:       r.TotalAmount,
		PlatformFee:       r.PlatformFee,
		OwnerPayout:       r.OwnerPayout,
		FeeSchedule:       r.FeeSchedule,
		FeeRate:           r.FeeRate,
		ExternalPaymentID: r.ExternalPaymentID,
	}
}

func (s *Server) CreateRental(c *gin.Context) {
	var req rentaldomain.CreateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	rental, err := s.rentalSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newRentalResponse(rental))
}

func (s *Server) GetRental(c *gin.Context) {
	rental, err := s.rentalSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newRentalResponse(rental))
}

func (s *Server) CreateRentalPaymentIntent(c *gin.Context) {
	var req rentaldomain.PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.rentalSvc.CreatePaymentIntent(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
