package settlement

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CheckoutHandler completes or cancels orders from checkout session events.
type CheckoutHandler struct {
	deps
}

func NewCheckoutHandler(p Params) *CheckoutHandler {
	return &CheckoutHandler{deps: newDeps(p, "settlement.checkout")}
}

func (h *CheckoutHandler) EventTypes() []gatewaydomain.EventType {
	return []gatewaydomain.EventType{
		gatewaydomain.EventTypeCheckoutCompleted,
		gatewaydomain.EventTypeCheckoutExpired,
	}
}

func (h *CheckoutHandler) Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error {
	if evt.Checkout == nil {
		return gatewaydomain.ErrInvalidPayload
	}
	order, err := h.findOrder(ctx, tx, evt.Checkout)
	if err != nil {
		return err
	}
	if order == nil {
		h.reconcile(ctx, "unknown_order",
			zap.String("event_id", evt.ID),
			zap.String("order_id", evt.Checkout.OrderID),
			zap.String("external_session_id", evt.Checkout.SessionID),
		)
		return nil
	}

	switch evt.Type {
	case gatewaydomain.EventTypeCheckoutCompleted:
		return h.complete(ctx, tx, evt, order)
	case gatewaydomain.EventTypeCheckoutExpired:
		return h.cancel(ctx, tx, evt, order)
	}
	return nil
}

func (h *CheckoutHandler) complete(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event, order *checkoutdomain.Order) error {
	checkout := evt.Checkout
	amountMismatch := checkout.AmountTotal > 0 && checkout.AmountTotal != order.TotalAmount
	currencyMismatch := checkout.Currency != "" && !strings.EqualFold(checkout.Currency, order.Currency)
	if amountMismatch || currencyMismatch {
		// Same rule as rental payments: a charge that does not match the
		// order is left for reconciliation instead of granting anything.
		h.reconcile(ctx, "checkout_amount_mismatch",
			zap.String("order_id", order.ID.String()),
			zap.String("external_session_id", checkout.SessionID),
			zap.Int64("expected", order.TotalAmount),
			zap.Int64("received", checkout.AmountTotal),
			zap.String("currency", checkout.Currency),
		)
		return nil
	}

	affected, err := h.orders.Complete(ctx, tx, order.ID, checkout.ExternalPaymentID, checkout.ExternalCustomerID, h.occurredAt(evt))
	if err != nil {
		return err
	}
	if affected == 0 {
		if order.Status == checkoutdomain.OrderStatusCancelled {
			h.reconcile(ctx, "paid_after_cancel",
				zap.String("order_id", order.ID.String()),
				zap.String("external_payment_id", checkout.ExternalPaymentID),
			)
		}
		return nil
	}

	items, err := order.Items()
	if err != nil {
		return err
	}
	granted := 0
	for _, item := range items {
		if item.Entitlement == "" {
			continue
		}
		inserted, err := h.orders.InsertEntitlement(ctx, tx, &checkoutdomain.BuyerEntitlement{
			ID:          h.genID.Generate(),
			BuyerID:     order.BuyerID,
			Entitlement: item.Entitlement,
			OrderID:     order.ID,
			CreatedAt:   h.clock.Now(),
		})
		if err != nil {
			return err
		}
		if inserted {
			granted++
		}
	}

	h.obsMetrics.RecordCheckoutSession(ctx, string(order.Mode), "completed")
	h.log.Info("order completed",
		zap.String("order_id", order.ID.String()),
		zap.String("buyer_id", order.BuyerID),
		zap.String("external_payment_id", checkout.ExternalPaymentID),
		zap.Int("entitlements_granted", granted),
	)
	return nil
}

func (h *CheckoutHandler) cancel(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event, order *checkoutdomain.Order) error {
	affected, err := h.orders.Cancel(ctx, tx, order.ID, h.occurredAt(evt))
	if err != nil {
		return err
	}
	if affected > 0 {
		h.obsMetrics.RecordCheckoutSession(ctx, string(order.Mode), "cancelled")
		h.log.Info("order cancelled", zap.String("order_id", order.ID.String()), zap.String("source_event", evt.SourceType))
	}
	return nil
}

func (h *CheckoutHandler) findOrder(ctx context.Context, tx *gorm.DB, checkout *gatewaydomain.CheckoutEvent) (*checkoutdomain.Order, error) {
	if raw := strings.TrimSpace(checkout.OrderID); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil && id != 0 {
			order, err := h.orders.FindOrderByID(ctx, tx, id)
			if err != nil || order != nil {
				return order, err
			}
		}
	}
	if checkout.SessionID == "" {
		return nil, nil
	}
	return h.orders.FindOrderBySessionID(ctx, tx, checkout.SessionID)
}
