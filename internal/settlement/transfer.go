package settlement

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type TransferHandler struct {
	deps
}

func NewTransferHandler(p Params) *TransferHandler {
	return &TransferHandler{deps: newDeps(p, "settlement.transfer")}
}

func (h *TransferHandler) EventTypes() []gatewaydomain.EventType {
	return []gatewaydomain.EventType{gatewaydomain.EventTypeTransferPaid}
}

func (h *TransferHandler) Handle(ctx context.Context, tx *gorm.DB, evt *gatewaydomain.Event) error {
	transfer := evt.Transfer
	if transfer == nil {
		return gatewaydomain.ErrInvalidPayload
	}
	var entryID snowflake.ID
	if raw := strings.TrimSpace(transfer.LedgerEntryID); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil {
			entryID = id
		}
	}
	if entryID == 0 && transfer.TransferID == "" {
		h.reconcile(ctx, "unknown_transfer", zap.String("event_id", evt.ID))
		return nil
	}

	updated, err := h.ledger.MarkTransferCompleted(ctx, tx, ledgerdomain.MarkTransferRequest{
		LedgerEntryID:      entryID,
		ExternalTransferID: transfer.TransferID,
		OccurredAt:         h.occurredAt(evt),
	})
	if err != nil {
		return err
	}
	if updated {
		h.obsMetrics.RecordPayoutTransfer(ctx, "completed")
		h.log.Info("owner payout completed",
			zap.String("ledger_entry_id", transfer.LedgerEntryID),
			zap.String("external_transfer_id", transfer.TransferID),
			zap.Int64("amount", transfer.Amount),
		)
	}
	return nil
}
