package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rigmarket/internal/clock"
	"github.com/smallbiznis/rigmarket/internal/gateway"
	gatewaydomain "github.com/smallbiznis/rigmarket/internal/gateway/domain"
	obsmetrics "github.com/smallbiznis/rigmarket/internal/observability/metrics"
	"github.com/smallbiznis/rigmarket/internal/webhook/domain"
	"github.com/smallbiznis/rigmarket/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxErrorLength = 1000

// errAlreadyProcessed rolls back a handler run that lost the race to mark
// the event processed.
var errAlreadyProcessed = errors.New("webhook event already processed")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Registry   *gateway.Registry
	Repo       domain.Repository
	Handlers   []domain.Handler    `group:"webhook_handlers"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	registry   *gateway.Registry
	repo       domain.Repository
	handlers   map[gatewaydomain.EventType]domain.Handler
	tracer     trace.Tracer
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	log := p.Log.Named("webhook.service")
	handlers := make(map[gatewaydomain.EventType]domain.Handler)
	for _, h := range p.Handlers {
		if h == nil {
			continue
		}
		for _, t := range h.EventTypes() {
			if _, exists := handlers[t]; exists {
				log.Warn("duplicate webhook handler registration", zap.String("event_type", string(t)))
			}
			handlers[t] = h
		}
	}
	return &Service{
		db:         p.DB,
		log:        log,
		genID:      p.GenID,
		clock:      clk,
		registry:   p.Registry,
		repo:       p.Repo,
		handlers:   handlers,
		tracer:     otel.Tracer("rigmarket/webhook"),
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (domain.Result, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	gw, err := s.resolve(provider)
	if err != nil {
		return domain.Result{}, err
	}
	provider = gw.Provider()
	if len(payload) == 0 {
		return domain.Result{}, domain.ErrEmptyPayload
	}

	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	ctx, span := s.tracer.Start(ctx, "webhook.ingest", trace.WithAttributes(
		attribute.String("webhook.provider", provider),
	))
	defer span.End()
	log := s.log.With(zap.String("provider", provider), zap.String("correlation_id", correlationID))

	evt, err := gw.ParseWebhook(payload, headers)
	switch {
	case err == nil:
	case errors.Is(err, gatewaydomain.ErrEventIgnored):
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "unsupported", string(domain.OutcomeIgnored))
		return domain.Result{Outcome: domain.OutcomeIgnored}, nil
	case errors.Is(err, gatewaydomain.ErrInvalidSignature):
		log.Warn("webhook signature rejected", zap.Error(err))
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "unknown", "rejected")
		span.SetStatus(codes.Error, "invalid signature")
		return domain.Result{}, err
	default:
		log.Warn("webhook could not be parsed", zap.Error(err))
		s.obsMetrics.RecordWebhookEvent(ctx, provider, "unknown", "rejected")
		span.SetStatus(codes.Error, err.Error())
		return domain.Result{}, err
	}

	span.SetAttributes(
		attribute.String("webhook.event_id", evt.ID),
		attribute.String("webhook.event_type", string(evt.Type)),
	)
	log = log.With(zap.String("event_id", evt.ID), zap.String("event_type", string(evt.Type)))
	result := domain.Result{EventID: evt.ID, EventType: string(evt.Type)}

	handler, ok := s.handlers[evt.Type]
	if !ok {
		log.Debug("no handler registered for webhook event")
		s.obsMetrics.RecordWebhookEvent(ctx, provider, string(evt.Type), string(domain.OutcomeIgnored))
		result.Outcome = domain.OutcomeIgnored
		return result, nil
	}

	record := &domain.EventRecord{
		ID:            s.genID.Generate(),
		Provider:      provider,
		EventID:       evt.ID,
		EventType:     string(evt.Type),
		Payload:       datatypes.JSON(payload),
		CorrelationID: correlationID,
		ReceivedAt:    s.clock.Now(),
	}
	inserted, err := s.repo.Insert(ctx, s.db, record)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return domain.Result{}, err
	}
	if !inserted {
		record, err = s.repo.Find(ctx, s.db, provider, evt.ID)
		if err != nil {
			return domain.Result{}, err
		}
		if record == nil {
			return domain.Result{}, errors.New("webhook event missing after insert conflict")
		}
		if record.ProcessedAt != nil {
			log.Info("duplicate webhook delivery acknowledged")
			s.obsMetrics.RecordWebhookEvent(ctx, provider, string(evt.Type), string(domain.OutcomeDuplicate))
			result.Outcome = domain.OutcomeDuplicate
			return result, nil
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := handler.Handle(ctx, tx, evt); err != nil {
			return err
		}
		affected, err := s.repo.MarkProcessed(ctx, tx, record.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if affected == 0 {
			return errAlreadyProcessed
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.obsMetrics.RecordWebhookEvent(ctx, provider, string(evt.Type), string(domain.OutcomeDuplicate))
		result.Outcome = domain.OutcomeDuplicate
		return result, nil
	}
	if err != nil {
		if recErr := s.repo.RecordFailure(ctx, s.db, record.ID, truncate(err.Error())); recErr != nil {
			log.Error("failed to record webhook processing error", zap.Error(recErr))
		}
		log.Error("webhook processing failed", zap.Error(err))
		s.obsMetrics.RecordWebhookEvent(ctx, provider, string(evt.Type), "failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "processing failed")
		return domain.Result{}, &domain.ProcessingError{EventID: evt.ID, EventType: string(evt.Type), Err: err}
	}

	log.Info("webhook event processed", zap.Time("occurred_at", evt.OccurredAt))
	s.obsMetrics.RecordWebhookEvent(ctx, provider, string(evt.Type), string(domain.OutcomeProcessed))
	result.Outcome = domain.OutcomeProcessed
	return result, nil
}

func (s *Service) resolve(provider string) (gatewaydomain.Gateway, error) {
	if provider == "" {
		return s.registry.Default()
	}
	return s.registry.Get(provider)
}

func truncate(msg string) string {
	if len(msg) <= maxErrorLength {
		return msg
	}
	return msg[:maxErrorLength]
}

