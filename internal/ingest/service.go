package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/znz-systems/sesdash/internal/blob"
	"github.com/znz-systems/sesdash/internal/metrics"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/pkg/clock"
)

var (
	ErrInvalidPayload         = errors.New("invalid webhook payload")
	ErrUnsupportedMessageType = errors.New("unsupported SNS message type")
	ErrConfirmationFailed     = errors.New("subscription confirmation failed")
)

// Outcome of a handled notification.
const (
	OutcomeStored       = "stored"
	OutcomeConfirmed    = "subscription_confirmed"
	OutcomeUnsubscribed = "unsubscribe_acknowledged"
)

type Result struct {
	Outcome string             `json:"outcome"`
	Event   *models.EmailEvent `json:"event,omitempty"`
}

// EventRecorder persists an event and its audit row atomically.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event models.EmailEventCreateParams, raw models.RawEventCreateParams) (*models.EmailEvent, error)
}

type Options struct {
	Blobs     blob.Store
	Confirmer Confirmer
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Service turns webhook bodies into stored email events.
type Service struct {
	events    EventRecorder
	blobs     blob.Store
	confirmer Confirmer
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewService(events EventRecorder, opts Options) *Service {
	s := &Service{
		events:    events,
		blobs:     opts.Blobs,
		confirmer: opts.Confirmer,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// HandleNotification accepts either an SNS envelope or a bare SES event.
func (s *Service) HandleNotification(ctx context.Context, body []byte) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		s.metrics.EventIngested("", "invalid")
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if _, ok := fields["Type"]; ok {
		return s.handleEnvelope(ctx, body)
	}
	if _, ok := fields["eventType"]; ok {
		return s.handleEvent(ctx, body, body)
	}
	if _, ok := fields["notificationType"]; ok {
		return s.handleEvent(ctx, body, body)
	}

	s.metrics.EventIngested("", "invalid")
	return Result{}, fmt.Errorf("%w: missing Type or eventType", ErrInvalidPayload)
}

func (s *Service) handleEnvelope(ctx context.Context, body []byte) (Result, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.metrics.EventIngested("", "invalid")
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch env.Type {
	case snsSubscriptionConfirmation:
		if strings.TrimSpace(env.SubscribeURL) == "" {
			s.metrics.EventIngested(env.Type, "invalid")
			return Result{}, fmt.Errorf("%w: missing SubscribeURL", ErrInvalidPayload)
		}
		if s.confirmer == nil {
			s.metrics.EventIngested(env.Type, "error")
			return Result{}, fmt.Errorf("%w: no confirmer configured", ErrConfirmationFailed)
		}
		if err := s.confirmer.Confirm(ctx, env.SubscribeURL); err != nil {
			s.metrics.EventIngested(env.Type, "error")
			return Result{}, fmt.Errorf("%w: %v", ErrConfirmationFailed, err)
		}
		s.logger.Info("SNS subscription confirmed", "topic_arn", env.TopicArn)
		s.metrics.EventIngested(env.Type, "confirmed")
		return Result{Outcome: OutcomeConfirmed}, nil

	case snsUnsubscribeConfirmation:
		s.logger.Info("SNS unsubscribe confirmation received", "topic_arn", env.TopicArn)
		s.metrics.EventIngested(env.Type, "acknowledged")
		return Result{Outcome: OutcomeUnsubscribed}, nil

	case snsNotification:
		if strings.TrimSpace(env.Message) == "" {
			s.metrics.EventIngested(env.Type, "invalid")
			return Result{}, fmt.Errorf("%w: missing Message", ErrInvalidPayload)
		}
		return s.handleEvent(ctx, []byte(env.Message), body)

	default:
		s.metrics.EventIngested(env.Type, "unsupported")
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedMessageType, env.Type)
	}
}

// handleEvent stores one SES event. raw is the verbatim request body that
// gets archived.
func (s *Service) handleEvent(ctx context.Context, message, raw []byte) (Result, error) {
	var ev sesEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		s.metrics.EventIngested("", "invalid")
		return Result{}, fmt.Errorf("%w: decode event: %v", ErrInvalidPayload, err)
	}

	status := ev.kind()
	if status == "" {
		s.metrics.EventIngested("", "invalid")
		return Result{}, fmt.Errorf("%w: missing eventType", ErrInvalidPayload)
	}
	messageID := strings.TrimSpace(ev.Mail.MessageID)
	if messageID == "" {
		s.metrics.EventIngested(status, "invalid")
		return Result{}, fmt.Errorf("%w: missing mail.messageId", ErrInvalidPayload)
	}
	if !models.IsKnownStatus(status) {
		s.logger.Warn("storing event with unknown status", "status", status, "message_id", messageID)
	}

	details, err := json.Marshal(ev.details())
	if err != nil {
		return Result{}, fmt.Errorf("encode details: %w", err)
	}

	now := s.clock.Now()
	publicID := uuid.New()
	blobKey := s.archive(ctx, now, publicID, raw)

	recipient := ev.recipient()
	subject := ev.Mail.CommonHeaders.Subject
	stored, err := s.events.RecordEvent(ctx,
		models.EmailEventCreateParams{
			MessageID:  messageID,
			Recipient:  recipient,
			Subject:    subject,
			Status:     status,
			EventType:  status,
			OccurredAt: now.Unix(),
		},
		models.RawEventCreateParams{
			PublicID:          publicID,
			MessageID:         messageID,
			EventType:         status,
			ProviderTimestamp: ev.providerTimestamp(),
			Source:            strings.TrimSpace(ev.Mail.Source),
			Destination:       recipient,
			Subject:           subject,
			Details:           details,
			BlobKey:           blobKey,
			ReceivedAt:        now.Unix(),
		},
	)
	if err != nil {
		if blobKey != "" {
			if delErr := s.blobs.Delete(ctx, blobKey); delErr != nil {
				s.logger.Warn("failed to remove orphaned payload", "key", blobKey, "error", delErr)
			}
		}
		s.metrics.EventIngested(status, "error")
		return Result{}, fmt.Errorf("record event: %w", err)
	}

	s.metrics.EventIngested(status, "stored")
	s.logger.Debug("email event stored", "id", stored.ID, "status", status, "message_id", messageID)
	return Result{Outcome: OutcomeStored, Event: stored}, nil
}

// archive stores the raw body and returns its key, or "" when archiving is
// disabled or fails.
func (s *Service) archive(ctx context.Context, now time.Time, id uuid.UUID, raw []byte) string {
	if s.blobs == nil {
		return ""
	}
	key := blob.RawPayloadKey(now, id)
	if err := s.blobs.Put(ctx, key, "application/json", raw); err != nil {
		s.logger.Warn("failed to archive raw payload", "key", key, "error", err)
		return ""
	}
	return key
}
