package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/checkout/domain"
	"github.com/smallbiznis/rigmarket/internal/clock"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/internal/pricing"
	"github.com/smallbiznis/rigmarket/internal/ratelimit"
	"github.com/smallbiznis/rigmarket/internal/validation"
	"github.com/smallbiznis/rigmarket/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const payerLockTTL = 5 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Gateway    gatewaydomain.Gateway
	Repo       domain.Repository
	Locker     *ratelimit.Locker          `optional:"true"`
	Limiter    *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics        `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	gateway    gatewaydomain.Gateway
	repo       domain.Repository
	locker     *ratelimit.Locker
	limiter    *ratelimit.CheckoutLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("checkout.service"),
		genID:      p.GenID,
		clock:      clk,
		gateway:    p.Gateway,
		repo:       p.Repo,
		locker:     p.Locker,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

// CreateSession opens a hosted checkout for a new or resumed pending order.
// The order only completes through the checkout webhook.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (domain.CreateSessionResponse, error) {
	normalizeRequest(&req)
	if err := validation.Struct(domain.ErrInvalidRequest, req); err != nil {
		return domain.CreateSessionResponse{}, err
	}
	currency, total, err := summarize(req)
	if err != nil {
		return domain.CreateSessionResponse{}, err
	}

	if err := s.allow(ctx, req.BuyerID); err != nil {
		return domain.CreateSessionResponse{}, err
	}

	order, err := s.loadOrCreateOrder(ctx, req, currency, total)
	if err != nil {
		return domain.CreateSessionResponse{}, err
	}
	items, err := order.Items()
	if err != nil {
		return domain.CreateSessionResponse{}, err
	}

	payer, err := s.findOrCreatePayer(ctx, order.PayerEmail)
	if err != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, string(order.Mode), "gateway_error")
		return domain.CreateSessionResponse{}, err
	}

	lineItems := make([]gatewaydomain.CheckoutLineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, gatewaydomain.CheckoutLineItem{
			Name:       item.Name,
			UnitAmount: item.UnitAmount,
			Quantity:   item.Quantity,
			Interval:   item.Interval,
		})
	}
	orderID := order.ID.String()
	session, err := s.gateway.CreateCheckoutSession(ctx, gatewaydomain.CheckoutSessionRequest{
		OrderID:            orderID,
		ExternalCustomerID: payer.ExternalCustomerID,
		Mode:               gatewaydomain.CheckoutMode(order.Mode),
		Currency:           order.Currency,
		LineItems:          lineItems,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.CancelURL,
		Metadata: map[string]string{
			gatewaydomain.MetadataOrderID: orderID,
			gatewaydomain.MetadataBuyerID: order.BuyerID,
		},
		IdempotencyKey: "order:" + orderID,
	})
	if err != nil {
		s.obsMetrics.RecordCheckoutSession(ctx, string(order.Mode), "gateway_error")
		return domain.CreateSessionResponse{}, err
	}

	externalIDs := map[string]string{
		"order_id":             orderID,
		"external_session_id":  session.ID,
		"external_customer_id": payer.ExternalCustomerID,
	}
	affected, err := s.repo.MarkProcessing(ctx, s.db, order.ID, session.ID, payer.ExternalCustomerID, s.clock.Now())
	if err != nil {
		return domain.CreateSessionResponse{}, s.persistenceFailure(ctx, "checkout.mark_processing", err, externalIDs)
	}
	if affected == 0 {
		stored, err := s.repo.FindOrderByID(ctx, s.db, order.ID)
		if err != nil {
			return domain.CreateSessionResponse{}, s.persistenceFailure(ctx, "checkout.mark_processing", err, externalIDs)
		}
		if stored != nil && stored.SessionID() != session.ID {
			s.log.Warn("order moved on before session was attached",
				zap.String("order_id", orderID),
				zap.String("status", string(stored.Status)),
				zap.String("external_session_id", session.ID),
			)
		}
	}

	s.obsMetrics.RecordCheckoutSession(ctx, string(order.Mode), "created")
	s.log.Info("checkout session created",
		zap.String("order_id", orderID),
		zap.String("buyer_id", order.BuyerID),
		zap.String("external_session_id", session.ID),
		zap.Int64("total_amount", order.TotalAmount),
	)
	return domain.CreateSessionResponse{
		OrderID:           orderID,
		ExternalSessionID: session.ID,
		RedirectURL:       session.URL,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.FindOrderByID(ctx, s.db, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order == nil {
		return domain.Order{}, domain.ErrNotFound
	}
	return *order, nil
}

func (s *Service) allow(ctx context.Context, buyerID string) error {
	if !s.limiter.Enabled() {
		return nil
	}
	result, err := s.limiter.AllowBuyer(ctx, buyerID)
	if err != nil {
		// Redis being unavailable should not block purchases.
		s.log.Warn("checkout rate limit check failed", zap.String("buyer_id", buyerID), zap.Error(err))
		return nil
	}
	if result.Allowed {
		return nil
	}
	s.obsMetrics.RecordRateLimitDenied(ctx, "checkout_session", "buyer")
	s.obsMetrics.RecordCheckoutSession(ctx, "", "rate_limited")
	return &domain.RateLimitError{RetryAfter: result.RetryAfter}
}

func (s *Service) loadOrCreateOrder(ctx context.Context, req domain.CreateSessionRequest, currency string, total int64) (*domain.Order, error) {
	if req.OrderID != "" {
		id, err := parseID(req.OrderID)
		if err != nil {
			return nil, err
		}
		order, err := s.repo.FindOrderByID(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		if order == nil || order.BuyerID != req.BuyerID {
			return nil, domain.ErrNotFound
		}
		if order.Status != domain.OrderStatusPending {
			return nil, domain.ErrOrderNotPending
		}
		return order, nil
	}

	items := make([]domain.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		items = append(items, domain.LineItem{
			ProductRef:  item.ProductRef,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitAmount:  item.UnitAmount,
			Currency:    item.Currency,
			Entitlement: item.Entitlement,
			Interval:    item.Interval,
		})
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:          s.genID.Generate(),
		BuyerID:     req.BuyerID,
		PayerEmail:  req.PayerEmail,
		Mode:        req.Mode,
		Currency:    currency,
		TotalAmount: total,
		Status:      domain.OrderStatusPending,
		LineItems:   datatypes.JSON(raw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertOrder(ctx, s.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

// findOrCreatePayer resolves the gateway customer for an email, creating it
// at most once per email across concurrent checkouts.
func (s *Service) findOrCreatePayer(ctx context.Context, email string) (*domain.PayerProfile, error) {
	provider := s.gateway.Provider()
	payer, err := s.repo.FindPayer(ctx, s.db, provider, email)
	if err != nil {
		return nil, err
	}
	if payer != nil {
		return payer, nil
	}

	err = s.locker.WithLock(ctx, "payer:"+email, payerLockTTL, func(ctx context.Context) error {
		existing, err := s.repo.FindPayer(ctx, s.db, provider, email)
		if err != nil {
			return err
		}
		if existing != nil {
			payer = existing
			return nil
		}

		created, err := s.gateway.FindOrCreatePayer(ctx, gatewaydomain.PayerRequest{
			Email:          email,
			IdempotencyKey: "payer:" + email,
		})
		if err != nil {
			return err
		}

		externalIDs := map[string]string{"payer_email": email, "external_customer_id": created.ExternalCustomerID}
		if _, err := s.repo.InsertPayerIfAbsent(ctx, s.db, &domain.PayerProfile{
			ID:                 s.genID.Generate(),
			Email:              email,
			Provider:           provider,
			ExternalCustomerID: created.ExternalCustomerID,
			CreatedAt:          s.clock.Now(),
		}); err != nil {
			return s.persistenceFailure(ctx, "checkout.payer_profile", err, externalIDs)
		}
		stored, err := s.repo.FindPayer(ctx, s.db, provider, email)
		if err != nil || stored == nil {
			if err == nil {
				err = errors.New("payer profile missing after insert")
			}
			return s.persistenceFailure(ctx, "checkout.payer_profile", err, externalIDs)
		}
		if stored.ExternalCustomerID != created.ExternalCustomerID {
			s.log.Warn("gateway customer superseded by concurrent checkout",
				zap.String("payer_email", email),
				zap.String("external_customer_id", stored.ExternalCustomerID),
				zap.String("discarded_customer_id", created.ExternalCustomerID),
			)
			s.obsMetrics.RecordReconciliationCandidate(ctx, "orphan_payer")
		}
		payer = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payer, nil
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

func normalizeRequest(req *domain.CreateSessionRequest) {
	req.BuyerID = strings.TrimSpace(req.BuyerID)
	req.PayerEmail = strings.ToLower(strings.TrimSpace(req.PayerEmail))
	req.SuccessURL = strings.TrimSpace(req.SuccessURL)
	req.CancelURL = strings.TrimSpace(req.CancelURL)
	req.OrderID = strings.TrimSpace(req.OrderID)
	for i := range req.LineItems {
		item := &req.LineItems[i]
		item.ProductRef = strings.TrimSpace(item.ProductRef)
		item.Name = strings.TrimSpace(item.Name)
		item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
		item.Entitlement = strings.TrimSpace(item.Entitlement)
		item.Interval = strings.ToLower(strings.TrimSpace(item.Interval))
	}
}

// summarize checks the line items agree on currency and returns the order
// total. A zero total never reaches the gateway.
func summarize(req domain.CreateSessionRequest) (string, int64, error) {
	currency := req.LineItems[0].Currency
	var total int64
	for i, item := range req.LineItems {
		if item.Currency != currency {
			return "", 0, validation.New(domain.ErrMixedCurrency, validation.FieldError{
				Field:   "line_items[" + strconv.Itoa(i) + "].currency",
				Code:    "invalid_choice",
				Message: "all line items must share one currency",
			})
		}
		if req.Mode == domain.ModeSubscription && item.Interval == "" {
			return "", 0, validation.New(domain.ErrIntervalRequired, validation.FieldError{
				Field:   "line_items[" + strconv.Itoa(i) + "].interval",
				Code:    "required",
				Message: "interval is required in subscription mode",
			})
		}
		subtotal, err := pricing.MulAmount(item.Quantity, item.UnitAmount)
		if err == nil {
			total, err = pricing.AddAmount(total, subtotal)
		}
		if err != nil {
			return "", 0, validation.New(domain.ErrAmountTooLarge, validation.FieldError{
				Field:   "line_items[" + strconv.Itoa(i) + "].unit_amount",
				Code:    "too_large",
				Message: "order total exceeds the maximum charge",
			})
		}
	}
	if total <= 0 {
		return "", 0, domain.ErrZeroAmount
	}
	return currency, total, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidOrderID
	}
	return id, nil
}
