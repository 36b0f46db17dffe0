package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/config"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/internal/pricing"
	"github.com/smallbiznis/rigmarket/internal/rental/domain"
	"github.com/smallbiznis/rigmarket/internal/validation"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Fees       *config.FeeConfigHolder
	Gateway    gatewaydomain.Gateway
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	fees       *config.FeeConfigHolder
	gateway    gatewaydomain.Gateway
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("rental.service"),
		genID:      p.GenID,
		clock:      clk,
		fees:       p.Fees,
		gateway:    p.Gateway,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// Create stores a pending rental with its fee split captured from the fee
// schedule in effect at this moment.
func (s *Service) Create(ctx context.Context, req domain.CreateRentalRequest) (domain.Rental, error) {
	req.MachineID = strings.TrimSpace(req.MachineID)
	req.RenterID = strings.TrimSpace(req.RenterID)
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validation.Struct(domain.ErrInvalidRequest, req); err != nil {
		return domain.Rental{}, err
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return domain.Rental{}, domain.ErrInvalidDateRange
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return domain.Rental{}, domain.ErrInvalidDateRange
	}
	days, err := pricing.RentalDays(start, end)
	if err != nil {
		return domain.Rental{}, domain.ErrInvalidDateRange
	}

	split, err := pricing.Quote(s.fees.Get(), req.DailyRate, days)
	if err != nil {
		return domain.Rental{}, err
	}

	now := s.clock.Now()
	schedule := string(split.Schedule)
	rental := domain.Rental{
		ID:            s.genID.Generate(),
		MachineID:     req.MachineID,
		RenterID:      req.RenterID,
		OwnerID:       req.OwnerID,
		StartDate:     start,
		EndDate:       end,
		DailyRate:     req.DailyRate,
		Currency:      req.Currency,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		TotalAmount:   &split.Total,
		PlatformFee:   &split.PlatformFee,
		OwnerPayout:   &split.OwnerPayout,
		FeeSchedule:   &schedule,
		FeeRate:       &split.FeeRate,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Insert(ctx, s.db, &rental); err != nil {
		return domain.Rental{}, err
	}

	s.log.Info("rental created",
		zap.String("rental_id", rental.ID.String()),
		zap.String("owner_id", rental.OwnerID),
		zap.Int64("total_amount", split.Total),
		zap.Int64("platform_fee", split.PlatformFee),
		zap.String("fee_schedule", schedule),
		zap.String("fee_rate", split.FeeRate),
	)
	return rental, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Rental, error) {
	rentalID, err := parseID(id)
	if err != nil {
		return domain.Rental{}, err
	}
	rental, err := s.repo.FindByID(ctx, s.db, rentalID)
	if err != nil {
		return domain.Rental{}, err
	}
	if rental == nil {
		return domain.Rental{}, domain.ErrNotFound
	}
	return *rental, nil
}

// CreatePaymentIntent opens, or returns the already open, gateway payment
// for a pending rental. The rental stays pending; only the payment webhook
// moves it to paid.
func (s *Service) CreatePaymentIntent(ctx context.Context, req domain.PaymentIntentRequest) (domain.PaymentIntentResponse, error) {
	req.RentalID = strings.TrimSpace(req.RentalID)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Amount == 0 {
		return domain.PaymentIntentResponse{}, domain.ErrZeroAmount
	}
	if err := validation.Struct(domain.ErrInvalidRequest, req); err != nil {
		return domain.PaymentIntentResponse{}, err
	}
	if req.Amount < 0 {
		return domain.PaymentIntentResponse{}, domain.ErrAmountMismatch
	}

	rental, err := s.GetByID(ctx, req.RentalID)
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}
	if rental.PaymentStatus == domain.PaymentStatusPaid {
		return domain.PaymentIntentResponse{}, domain.ErrAlreadyPaid
	}
	if rental.Status != domain.StatusPending {
		return domain.PaymentIntentResponse{}, domain.ErrNotPayable
	}

	split, err := s.ensureSplit(ctx, &rental)
	if err != nil {
		return domain.PaymentIntentResponse{}, err
	}
	if req.Currency != rental.Currency {
		return domain.PaymentIntentResponse{}, domain.ErrCurrencyMismatch
	}
	if req.Amount != split.Total {
		return domain.PaymentIntentResponse{}, domain.ErrAmountMismatch
	}

	if existing := rental.PaymentID(); existing != "" {
		intent, err := s.gateway.GetPaymentIntent(ctx, existing)
		if err != nil {
			s.obsMetrics.RecordPaymentIntent(ctx, "gateway_error")
			return domain.PaymentIntentResponse{}, err
		}
		s.obsMetrics.RecordPaymentIntent(ctx, "reused")
		return domain.PaymentIntentResponse{ExternalPaymentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
	}

	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata[gatewaydomain.MetadataRentalID] = rental.ID.String()
	metadata["owner_id"] = rental.OwnerID

	intent, err := s.gateway.CreatePaymentIntent(ctx, gatewaydomain.PaymentIntentRequest{
		Amount:         split.Total,
		Currency:       rental.Currency,
		Description:    "Rental " + rental.ID.String() + " of machine " + rental.MachineID,
		Metadata:       metadata,
		IdempotencyKey: "rental:" + rental.ID.String(),
	})
	if err != nil {
		s.obsMetrics.RecordPaymentIntent(ctx, "gateway_error")
		return domain.PaymentIntentResponse{}, err
	}

	externalIDs := map[string]string{"rental_id": rental.ID.String(), "external_payment_id": intent.ID}
	affected, err := s.repo.AttachPayment(ctx, s.db, rental.ID, intent.ID, s.clock.Now())
	if err != nil {
		return domain.PaymentIntentResponse{}, s.persistenceFailure(ctx, "rental.attach_payment", err, externalIDs)
	}
	if affected == 0 {
		stored, err := s.repo.FindByID(ctx, s.db, rental.ID)
		if err != nil {
			return domain.PaymentIntentResponse{}, s.persistenceFailure(ctx, "rental.attach_payment", err, externalIDs)
		}
		if stored != nil && stored.PaymentID() != intent.ID {
			s.log.Warn("rental already carries a different payment",
				zap.String("rental_id", rental.ID.String()),
				zap.String("external_payment_id", stored.PaymentID()),
				zap.String("discarded_payment_id", intent.ID),
			)
			s.obsMetrics.RecordReconciliationCandidate(ctx, "orphan_payment_intent")
		}
	}

	s.obsMetrics.RecordPaymentIntent(ctx, "created")
	s.log.Info("rental payment intent created",
		zap.String("rental_id", rental.ID.String()),
		zap.String("external_payment_id", intent.ID),
		zap.Int64("amount", split.Total),
	)
	return domain.PaymentIntentResponse{ExternalPaymentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// ensureSplit returns the captured split, capturing one for rentals stored
// without it.
func (s *Service) ensureSplit(ctx context.Context, rental *domain.Rental) (pricing.Split, error) {
	if split, ok := rental.Split(); ok {
		return split, nil
	}

	days, err := pricing.RentalDays(rental.StartDate, rental.EndDate)
	if err != nil {
		return pricing.Split{}, domain.ErrInvalidDateRange
	}
	split, err := pricing.Quote(s.fees.Get(), rental.DailyRate, days)
	if err != nil {
		return pricing.Split{}, err
	}
	if _, err := s.repo.CaptureSplit(ctx, s.db, rental.ID, split, s.clock.Now()); err != nil {
		return pricing.Split{}, err
	}

	// Another request may have captured first; the stored split wins.
	stored, err := s.repo.FindByID(ctx, s.db, rental.ID)
	if err != nil {
		return pricing.Split{}, err
	}
	if stored == nil {
		return pricing.Split{}, domain.ErrNotFound
	}
	*rental = *stored
	captured, ok := stored.Split()
	if !ok {
		return pricing.Split{}, errors.New("rental split missing after capture")
	}
	return captured, nil
}

func (s *Service) persistenceFailure(ctx context.Context, op string, err error, externalIDs map[string]string) error {
	s.obsMetrics.RecordPersistenceFailure(ctx, op)
	s.log.Error("local write failed after gateway accepted request",
		zap.String("operation", op),
		zap.Any("external_ids", externalIDs),
		zap.Error(err),
	)
	return db.NewPersistenceError(op, err, externalIDs)
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
