package settlement

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	rentaldomain "github.com/smallbiznis/rigmarket/internal/rental/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentHandler settles rental payments. The fee split applied is always
// the one captured on the rental, never the current fee schedule.
type PaymentHandler struct {
	deps
}

func NewPaymentHandler(p Params) *PaymentHandler {
	return &PaymentHandler{deps: newDeps(p, "settlement.payment")}
}

func (h *PaymentHandler) EventTypes() []gatewaydomain.EventType {
	return []gatewaydomain.EventType{
		gatewaydomain.EventTypePaymentSucceeded,
		gatewaydomain.EventTypePaymentFailed,
	}
}

func (h *PaymentHandler) Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error {
	if evt.Payment == nil {
		return gatewaydomain.ErrInvalidPayload
	}
	rental, err := h.findRental(ctx, tx, evt.Payment)
	if err != nil {
		return err
	}
	if rental == nil {
		h.reconcile(ctx, "unknown_rental",
			zap.String("event_id", evt.ID),
			zap.String("rental_id", evt.Payment.RentalID),
			zap.String("external_payment_id", evt.Payment.PaymentID),
		)
		return nil
	}

	switch evt.Type {
	case gatewaydomain.EventTypePaymentSucceeded:
		return h.succeeded(ctx, tx, evt, rental)
	case gatewaydomain.EventTypePaymentFailed:
		return h.failed(ctx, tx, evt, rental)
	}
	return nil
}

func (h *PaymentHandler) succeeded(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event, rental *rentaldomain.Rental) error {
	payment := evt.Payment
	fields := []zap.Field{
		zap.String("rental_id", rental.ID.String()),
		zap.String("external_payment_id", payment.PaymentID),
	}

	split, ok := rental.Split()
	if !ok {
		h.reconcile(ctx, "missing_split", fields...)
		return nil
	}
	if payment.Amount != split.Total || !strings.EqualFold(payment.Currency, rental.Currency) {
		h.reconcile(ctx, "payment_amount_mismatch", append(fields,
			zap.Int64("expected", split.Total),
			zap.Int64("received", payment.Amount),
			zap.String("currency", payment.Currency),
		)...)
		return nil
	}
	if existing := rental.PaymentID(); existing != "" && existing != payment.PaymentID {
		h.log.Warn("payment differs from the one attached to the rental",
			append(fields, zap.String("attached_payment_id", existing))...)
	}

	paidAt := h.occurredAt(evt)
	affected, err := h.rentals.MarkPaid(ctx, tx, rental.ID, payment.PaymentID, paidAt)
	if err != nil {
		return err
	}
	if affected == 0 {
		current, err := h.rentals.FindByID(ctx, tx, rental.ID)
		if err != nil {
			return err
		}
		if current == nil || current.PaymentStatus != rentaldomain.PaymentStatusPaid {
			// The charge landed on a rental that already failed or was
			// cancelled. It needs a manual refund, not a ledger entry.
			status := ""
			if current != nil {
				status = string(current.PaymentStatus)
			}
			h.reconcile(ctx, "payment_after_cancellation", append(fields,
				zap.String("payment_status", status),
				zap.Int64("amount", payment.Amount),
			)...)
			return nil
		}
	}

	// Ledger writes are idempotent per rental, so they also run on
	// redelivery to complete anything a previous attempt missed.
	req := ledgerdomain.RecordPaymentRequest{
		RentalID:          rental.ID,
		OwnerID:           rental.OwnerID,
		Currency:          rental.Currency,
		Total:             split.Total,
		PlatformFee:       split.PlatformFee,
		OwnerPayout:       split.OwnerPayout,
		ExternalPaymentID: payment.PaymentID,
		OccurredAt:        paidAt,
	}
	if _, err := h.ledger.RecordRentalPayment(ctx, tx, req); err != nil {
		return err
	}

	eligible, err := h.payees.IsPayoutEligible(ctx, tx, rental.OwnerID)
	if err != nil {
		return err
	}
	payoutRecorded := false
	if eligible {
		if payoutRecorded, err = h.ledger.RecordOwnerPayout(ctx, tx, req); err != nil {
			return err
		}
	}

	if affected > 0 {
		h.log.Info("rental paid", append(fields,
			zap.Int64("total_amount", split.Total),
			zap.Int64("platform_fee", split.PlatformFee),
			zap.Int64("owner_payout", split.OwnerPayout),
			zap.Bool("payout_recorded", payoutRecorded),
		)...)
	}
	return nil
}

func (h *PaymentHandler) failed(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event, rental *rentaldomain.Rental) error {
	affected, err := h.rentals.MarkFailed(ctx, tx, rental.ID, h.occurredAt(evt))
	if err != nil {
		return err
	}
	if affected > 0 {
		h.log.Info("rental payment failed",
			zap.String("rental_id", rental.ID.String()),
			zap.String("external_payment_id", evt.Payment.PaymentID),
			zap.String("failure_reason", evt.Payment.FailureReason),
		)
	}
	return nil
}

func (h *PaymentHandler) findRental(ctx context.Context, tx *gorm.DB, payment *gatewaydomain.PaymentEvent) (*rentaldomain.Rental, error) {
	if raw := strings.TrimSpace(payment.RentalID); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil && id != 0 {
			rental, err := h.rentals.FindByID(ctx, tx, id)
			if err != nil || rental != nil {
				return rental, err
			}
		}
	}
	if payment.PaymentID == "" {
		return nil, nil
	}
	return h.rentals.FindByExternalPaymentID(ctx, tx, payment.PaymentID)
}
