package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/clock"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/internal/payee/domain"
	"github.com/smallbiznis/rigmarket/internal/ratelimit"
	"github.com/smallbiznis/rigmarket/internal/validation"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const provisionLockTTL = 10 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Gateway    gatewaydomain.Gateway
	Repo       domain.Repository
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	gateway    gatewaydomain.Gateway
	repo       domain.Repository
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payee.service"),
		genID:      p.GenID,
		clock:      clk,
		gateway:    p.Gateway,
		repo:       p.Repo,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Provision(ctx context.Context, req domain.ProvisionRequest) (domain.ProvisionResponse, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	if err := validation.Struct(domain.ErrInvalidRequest, req); err != nil {
		return domain.ProvisionResponse{}, err
	}

	existing, err := s.repo.FindByOwner(ctx, s.db, req.OwnerID)
	if err != nil {
		return domain.ProvisionResponse{}, err
	}
	if existing != nil {
		return s.reuse(ctx, existing), nil
	}

	var resp domain.ProvisionResponse
	err = s.locker.WithLock(ctx, "payee:"+req.OwnerID, provisionLockTTL, func(ctx context.Context) error {
		// A concurrent caller may have finished while we waited for the lock.
		existing, err := s.repo.FindByOwner(ctx, s.db, req.OwnerID)
		if err != nil {
			return err
		}
		if existing != nil {
			resp = s.reuse(ctx, existing)
			return nil
		}

		created, err := s.gateway.CreatePayeeAccount(ctx, gatewaydomain.PayeeAccountRequest{
			OwnerID:        req.OwnerID,
			Email:          req.Email,
			DisplayName:    req.DisplayName,
			Country:        req.Country,
			IdempotencyKey: "payee:" + req.OwnerID,
		})
		if err != nil {
			s.obsMetrics.RecordPayeeAccount(ctx, "gateway_error")
			return err
		}

		now := s.clock.Now()
		account := &domain.PayeeAccount{
			ID:                s.genID.Generate(),
			OwnerID:           req.OwnerID,
			Provider:          s.gateway.Provider(),
			ExternalAccountID: created.ID,
			Email:             req.Email,
			DisplayName:       req.DisplayName,
			Country:           req.Country,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		externalIDs := map[string]string{"owner_id": req.OwnerID, "external_account_id": created.ID}
		inserted, err := s.repo.InsertIfAbsent(ctx, s.db, account)
		if err != nil {
			return s.persistenceFailure(ctx, "payee.provision", err, externalIDs)
		}
		stored, err := s.repo.FindByOwner(ctx, s.db, req.OwnerID)
		if err != nil || stored == nil {
			if err == nil {
				err = errors.New("payee account missing after insert")
			}
			return s.persistenceFailure(ctx, "payee.provision", err, externalIDs)
		}
		if stored.ExternalAccountID != created.ID {
			s.log.Warn("gateway payee account superseded by concurrent provision",
				zap.String("owner_id", req.OwnerID),
				zap.String("discarded_external_account_id", created.ID),
				zap.String("external_account_id", stored.ExternalAccountID),
			)
			s.obsMetrics.RecordReconciliationCandidate(ctx, "orphan_payee_account")
		}

		outcome := "reused"
		if inserted {
			outcome = "created"
			s.log.Info("payee account provisioned",
				zap.String("owner_id", req.OwnerID),
				zap.String("external_account_id", stored.ExternalAccountID),
			)
		}
		s.obsMetrics.RecordPayeeAccount(ctx, outcome)

		resp = domain.ProvisionResponse{
			ExternalAccountID: stored.ExternalAccountID,
			Created:           inserted,
		}
		return nil
	})
	if err != nil {
		return domain.ProvisionResponse{}, err
	}
	return resp, nil
}

// reuse reports the live gateway flags for an existing account without
// persisting them; only the account webhook writes capability flags.
func (s *Service) reuse(ctx context.Context, account *domain.PayeeAccount) domain.ProvisionResponse {
	resp := domain.ProvisionResponse{
		ExternalAccountID: account.ExternalAccountID,
		ChargesEnabled:    account.ChargesEnabled,
		PayoutsEnabled:    account.PayoutEnabled,
		DetailsSubmitted:  account.DetailsSubmitted,
	}
	live, err := s.gateway.GetPayeeAccount(ctx, account.ExternalAccountID)
	if err != nil {
		s.log.Warn("payee account lookup failed, returning stored flags",
			zap.String("owner_id", account.OwnerID),
			zap.String("external_account_id", account.ExternalAccountID),
			zap.Error(err),
		)
	} else {
		resp.ChargesEnabled = live.ChargesEnabled
		resp.PayoutsEnabled = live.PayoutsEnabled
		resp.DetailsSubmitted = live.DetailsSubmitted
	}
	s.obsMetrics.RecordPayeeAccount(ctx, "reused")
	return resp
}

func (s *Service) CreateOnboardingLink(ctx context.Context, req domain.OnboardingLinkRequest) (domain.OnboardingLinkResponse, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.RefreshURL = strings.TrimSpace(req.RefreshURL)
	req.ReturnURL = strings.TrimSpace(req.ReturnURL)
	if err := validation.Struct(domain.ErrInvalidRequest, req); err != nil {
		return domain.OnboardingLinkResponse{}, err
	}

	account, err := s.repo.FindByOwner(ctx, s.db, req.OwnerID)
	if err != nil {
		return domain.OnboardingLinkResponse{}, err
	}
	if account == nil {
		return domain.OnboardingLinkResponse{}, domain.ErrNotFound
	}

	link, err := s.gateway.CreateOnboardingLink(ctx, gatewaydomain.OnboardingLinkRequest{
		AccountID:  account.ExternalAccountID,
		RefreshURL: req.RefreshURL,
		ReturnURL:  req.ReturnURL,
	})
	if err != nil {
		return domain.OnboardingLinkResponse{}, err
	}
	return domain.OnboardingLinkResponse{
		OnboardingURL: link.URL,
		ExpiresAt:     link.ExpiresAt,
	}, nil
}

func (s *Service) SyncCapabilities(ctx context.Context, tx *gorm.DB, update *gatewaydomain.AccountUpdate) (domain.SyncResult, error) {
	if update == nil || strings.TrimSpace(update.AccountID) == "" {
		return domain.SyncResult{}, domain.ErrInvalidRequest
	}
	conn := s.conn(tx)

	before, err := s.repo.FindByExternalID(ctx, conn, update.AccountID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if before == nil {
		return domain.SyncResult{Found: false}, nil
	}

	affected, err := s.repo.UpdateCapabilities(ctx, conn, update, s.clock.Now())
	if err != nil {
		return domain.SyncResult{}, err
	}
	if affected == 0 {
		s.log.Info("stale account update ignored",
			zap.String("owner_id", before.OwnerID),
			zap.String("external_account_id", update.AccountID),
			zap.Time("occurred_at", update.OccurredAt),
		)
		return domain.SyncResult{
			Found:         true,
			Stale:         true,
			OwnerID:       before.OwnerID,
			PayoutEnabled: before.PayoutEnabled,
		}, nil
	}

	result := domain.SyncResult{
		Found:              true,
		OwnerID:            before.OwnerID,
		PayoutEnabled:      update.PayoutsEnabled,
		PayoutsJustEnabled: update.PayoutsEnabled && !before.PayoutEnabled,
	}
	if before.PayoutEnabled != update.PayoutsEnabled || before.BankVerified != update.BankVerified {
		s.log.Info("payee capabilities changed",
			zap.String("owner_id", before.OwnerID),
			zap.String("external_account_id", update.AccountID),
			zap.Bool("payout_enabled", update.PayoutsEnabled),
			zap.Bool("bank_verified", update.BankVerified),
		)
	}
	return result, nil
}

func (s *Service) GetByOwner(ctx context.Context, ownerID string) (domain.PayeeAccount, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.PayeeAccount{}, domain.ErrInvalidOwner
	}
	account, err := s.repo.FindByOwner(ctx, s.db, ownerID)
	if err != nil {
		return domain.PayeeAccount{}, err
	}
	if account == nil {
		return domain.PayeeAccount{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) IsPayoutEligible(ctx context.Context, tx *gorm.DB, ownerID string) (bool, error) {
	account, err := s.repo.FindByOwner(ctx, s.conn(tx), strings.TrimSpace(ownerID))
	if err != nil {
		return false, err
	}
	return account != nil && account.PayoutEnabled, nil
}

func (s *Service) persistenceFailure(ctx context.Context, op string, err error, externalIDs map[string]string) error {
	perr := db.NewPersistenceError(op, err, externalIDs)
	s.obsMetrics.RecordPersistenceFailure(ctx, op)
	s.log.Error("local write failed after gateway accepted request",
		zap.String("operation", op),
		zap.Any("external_ids", externalIDs),
		zap.Error(err),
	)
	return perr
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}
