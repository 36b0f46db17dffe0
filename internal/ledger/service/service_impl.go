package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/clock"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) RecordRentalPayment(ctx context.Context, tx *gorm.DB, req ledgerdomain.RecordPaymentRequest) (bool, error) {
	if err := validateSplit(req); err != nil {
		return false, err
	}

	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	entry := s.newEntry(req, ledgerdomain.EntryTypeRentalPayment, req.Total)
	entry.Status = ledgerdomain.EntryStatusCompleted
	entry.CompletedAt = &occurredAt

	return s.insert(ctx, tx, entry)
}

func (s *Service) RecordOwnerPayout(ctx context.Context, tx *gorm.DB, req ledgerdomain.RecordPayoutRequest) (bool, error) {
	if err := validateSplit(req); err != nil {
		return false, err
	}
	if req.OwnerPayout <= 0 {
		return false, ledgerdomain.ErrInvalidAmount
	}

	entry := s.newEntry(req, ledgerdomain.EntryTypeOwnerPayout, req.OwnerPayout)
	entry.Status = ledgerdomain.EntryStatusPending

	return s.insert(ctx, tx, entry)
}

func (s *Service) MarkTransferCompleted(ctx context.Context, tx *gorm.DB, req ledgerdomain.MarkTransferRequest) (bool, error) {
	transferID := strings.TrimSpace(req.ExternalTransferID)
	if req.LedgerEntryID == 0 && transferID == "" {
		return false, ledgerdomain.ErrInvalidTransfer
	}

	now := req.OccurredAt
	if now.IsZero() {
		now = s.clock.Now()
	}

	db := s.conn(tx)
	var (
		affected int64
		err      error
	)
	if req.LedgerEntryID != 0 {
		affected, err = s.repo.MarkCompletedByID(ctx, db, req.LedgerEntryID, transferID, now)
	} else {
		affected, err = s.repo.MarkCompletedByTransfer(ctx, db, transferID, now)
	}
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Service) AttachTransfer(ctx context.Context, entryID snowflake.ID, externalTransferID string) error {
	externalTransferID = strings.TrimSpace(externalTransferID)
	if entryID == 0 || externalTransferID == "" {
		return ledgerdomain.ErrInvalidTransfer
	}

	affected, err := s.repo.AttachTransfer(ctx, s.db, entryID, externalTransferID, s.clock.Now())
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	entry, err := s.repo.FindByID(ctx, s.db, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ledgerdomain.ErrNotFound
	}
	if entry.ExternalTransferID != nil && *entry.ExternalTransferID == externalTransferID {
		return nil
	}
	return ledgerdomain.ErrTransferAttached
}

func (s *Service) ListPendingPayouts(ctx context.Context, afterID snowflake.ID, limit int) ([]ledgerdomain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListPendingPayouts(ctx, s.db, afterID, limit)
}

func (s *Service) ListByRental(ctx context.Context, rentalID snowflake.ID) ([]ledgerdomain.LedgerEntry, error) {
	if rentalID == 0 {
		return nil, ledgerdomain.ErrInvalidRental
	}
	return s.repo.ListByRental(ctx, s.db, rentalID)
}

func (s *Service) ListByOwner(ctx context.Context, req ledgerdomain.ListOwnerEntriesRequest) (ledgerdomain.ListOwnerEntriesResponse, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return ledgerdomain.ListOwnerEntriesResponse{}, ledgerdomain.ErrInvalidOwner
	}

	var afterID snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListOwnerEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		afterID, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return ledgerdomain.ListOwnerEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
	}

	pageSize := pagination.NormalizePageSize(req.PageSize)
	items, err := s.repo.ListByOwner(ctx, s.db, ownerID, afterID, int(pageSize)+1)
	if err != nil {
		return ledgerdomain.ListOwnerEntriesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(entry *ledgerdomain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: entry.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}

	resp := ledgerdomain.ListOwnerEntriesResponse{Entries: entries}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) newEntry(req ledgerdomain.RecordPaymentRequest, entryType ledgerdomain.EntryType, amount int64) *ledgerdomain.LedgerEntry {
	now := s.clock.Now()
	entry := &ledgerdomain.LedgerEntry{
		ID:        s.genID.Generate(),
		RentalID:  req.RentalID,
		OwnerID:   strings.TrimSpace(req.OwnerID),
		EntryType: entryType,
		Amount:    amount,
		Currency:  strings.ToUpper(strings.TrimSpace(req.Currency)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if paymentID := strings.TrimSpace(req.ExternalPaymentID); paymentID != "" {
		entry.ExternalPaymentID = &paymentID
	}
	return entry
}

func (s *Service) insert(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.LedgerEntry) (bool, error) {
	inserted, err := s.repo.Insert(ctx, s.conn(tx), entry)
	if err != nil {
		return false, err
	}
	if inserted {
		s.obsMetrics.RecordLedgerEntry(ctx, string(entry.EntryType))
		s.log.Info("ledger entry recorded",
			zap.String("ledger_entry_id", entry.ID.String()),
			zap.String("rental_id", entry.RentalID.String()),
			zap.String("entry_type", string(entry.EntryType)),
			zap.Int64("amount", entry.Amount),
			zap.String("currency", entry.Currency),
		)
	}
	return inserted, nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func validateSplit(req ledgerdomain.RecordPaymentRequest) error {
	if req.RentalID == 0 {
		return ledgerdomain.ErrInvalidRental
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		return ledgerdomain.ErrInvalidOwner
	}
	if strings.TrimSpace(req.Currency) == "" {
		return ledgerdomain.ErrInvalidCurrency
	}
	if req.Total <= 0 || req.PlatformFee < 0 || req.OwnerPayout < 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	if req.PlatformFee+req.OwnerPayout != req.Total {
		return ledgerdomain.ErrSplitMismatch
	}
	return nil
}
