package settlement

import (
	"context"

	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AccountHandler is the only writer of payee capability flags.
type AccountHandler struct {
	deps
}

func NewAccountHandler(p Params) *AccountHandler {
	return &AccountHandler{deps: newDeps(p, "settlement.account")}
}

func (h *AccountHandler) EventTypes() []gatewaydomain.EventType {
	return []gatewaydomain.EventType{gatewaydomain.EventTypeAccountUpdated}
}

func (h *AccountHandler) Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error {
	if evt.Account == nil {
		return gatewaydomain.ErrInvalidPayload
	}
	result, err := h.payees.SyncCapabilities(ctx, tx, evt.Account)
	if err != nil {
		return err
	}
	if !result.Found {
		h.log.Info("account update for unknown payee ignored",
			zap.String("event_id", evt.ID),
			zap.String("external_account_id", evt.Account.AccountID),
		)
		return nil
	}
	if !result.PayoutsJustEnabled {
		return nil
	}
	return h.backfill(ctx, tx, result.OwnerID)
}

// backfill writes the pending owner_payout entries for rentals paid while
// the owner could not receive payouts. It runs once, on the transition to
// payouts enabled, so it drains every batch.
func (h *AccountHandler) backfill(ctx context.Context, tx *gorm.DB, ownerID string) error {
	recorded := 0
	for {
		rentals, err := h.rentals.ListPaidWithoutPayout(ctx, tx, ownerID, backfillBatch)
		if err != nil {
			return err
		}
		batchRecorded := 0
		for _, rental := range rentals {
			split, ok := rental.Split()
			if !ok {
				continue
			}
			inserted, err := h.ledger.RecordOwnerPayout(ctx, tx, ledgerdomain.RecordPayoutRequest{
				RentalID:          rental.ID,
				OwnerID:           rental.OwnerID,
				Currency:          rental.Currency,
				Total:             split.Total,
				PlatformFee:       split.PlatformFee,
				OwnerPayout:       split.OwnerPayout,
				ExternalPaymentID: rental.PaymentID(),
			})
			if err != nil {
				return err
			}
			if inserted {
				batchRecorded++
			}
		}
		recorded += batchRecorded
		// A full batch with nothing recorded would list the same rows again.
		if len(rentals) < backfillBatch || batchRecorded == 0 {
			break
		}
	}
	if recorded > 0 {
		h.log.Info("owner payouts backfilled", zap.String("owner_id", ownerID), zap.Int("count", recorded))
	}
	return nil
}
