package guard

import (
	"errors"
	"strings"
	"time"

	checkoutdomain "github.com/smallbiznis/rigmarket/internal/checkout/domain"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
)

var (
	ErrNotOwnerPayout       = errors.New("ledger_entry_not_owner_payout")
	ErrPayoutNotPending     = errors.New("payout_not_pending")
	ErrTransferAttached     = errors.New("payout_transfer_attached")
	ErrZeroPayout           = errors.New("payout_amount_zero")
	ErrPayoutsDisabled      = errors.New("payee_payouts_disabled")
	ErrMissingPayeeAccount  = errors.New("payee_account_missing")
	ErrOrderNotProcessing   = errors.New("order_not_processing")
	ErrMissingSession       = errors.New("order_missing_session")
	ErrOrderNotYetAbandoned = errors.New("order_not_yet_abandoned")
)

// EnsurePayoutDispatchable reports whether a transfer may be requested for
// entry to account.
func EnsurePayoutDispatchable(entry ledgerdomain.LedgerEntry, account payeedomain.PayeeAccount) error {
	if entry.EntryType != ledgerdomain.EntryTypeOwnerPayout {
		return ErrNotOwnerPayout
	}
	if entry.Status != ledgerdomain.EntryStatusPending {
		return ErrPayoutNotPending
	}
	if entry.ExternalTransferID != nil && strings.TrimSpace(*entry.ExternalTransferID) != "" {
		return ErrTransferAttached
	}
	if entry.Amount <= 0 {
		return ErrZeroPayout
	}
	if strings.TrimSpace(account.ExternalAccountID) == "" {
		return ErrMissingPayeeAccount
	}
	if !account.PayoutEnabled {
		return ErrPayoutsDisabled
	}
	return nil
}

func EnsureOrderAbandoned(order checkoutdomain.Order, now time.Time, after time.Duration) error {
	if order.Status != checkoutdomain.OrderStatusProcessing {
		return ErrOrderNotProcessing
	}
	if strings.TrimSpace(order.SessionID()) == "" {
		return ErrMissingSession
	}
	if after <= 0 || now.Sub(order.CreatedAt) < after {
		return ErrOrderNotYetAbandoned
	}
	return nil
}
