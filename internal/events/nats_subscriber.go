package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultSubjectPrefix = "identity.session"
	DefaultHandleTimeout = 15 * time.Second
)

// SessionMessage is the payload published for every identity provider
// session event. The event type is taken from the last subject token.
type SessionMessage struct {
	PrincipalID string     `json:"principal_id"`
	Email       string     `json:"email,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
}

// Handler applies decoded session events.
type Handler interface {
	HandleEvent(ctx context.Context, event models.SessionEvent) error
}

// Verifier turns an access token into a principal.
type Verifier interface {
	Verify(token string) (models.Principal, error)
}

// Config configures a Subscriber. Verifier and Sessions are optional.
type Config struct {
	Handler       Handler
	Verifier      Verifier
	Sessions      store.SessionStore
	Clock         clockwork.Clock
	SubjectPrefix string
	HandleTimeout time.Duration
}

// Subscriber feeds identity provider session events from NATS into a
// Handler.
type Subscriber struct {
	nc            *nats.Conn
	handler       Handler
	verifier      Verifier
	sessions      store.SessionStore
	clock         clockwork.Clock
	subjectPrefix string
	handleTimeout time.Duration
	metrics       *telemetry.Metrics
}

// NewSubscriber creates a session event subscriber.
func NewSubscriber(nc *nats.Conn, cfg Config) (*Subscriber, error) {
	if cfg.Handler == nil {
		return nil, errors.New("event handler is required")
	}

	s := &Subscriber{
		nc:            nc,
		handler:       cfg.Handler,
		verifier:      cfg.Verifier,
		sessions:      cfg.Sessions,
		clock:         cfg.Clock,
		subjectPrefix: cfg.SubjectPrefix,
		handleTimeout: cfg.HandleTimeout,
		metrics:       telemetry.GetMetrics(),
	}

	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.subjectPrefix == "" {
		s.subjectPrefix = DefaultSubjectPrefix
	}
	if s.handleTimeout <= 0 {
		s.handleTimeout = DefaultHandleTimeout
	}

	return s, nil
}

// Start subscribes to the session subjects and blocks until ctx is done.
//
// A single wildcard subscription is used so events for a principal are
// handled in the order they were published.
func (s *Subscriber) Start(ctx context.Context) error {
	if s.nc == nil {
		return errors.New("nats connection is required")
	}

	subject := s.subjectPrefix + ".*"

	sub, err := s.nc.Subscribe(subject, s.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	log.Info().
		Str("subject", subject).
		Msg("Session event subscriber started")

	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe from session events")
	}

	return ctx.Err()
}

// handleMessage handles a single session event message
func (s *Subscriber) handleMessage(msg *nats.Msg) {
	log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(msg.Data)).
		Msg("Received session event")

	ctx, cancel := context.WithTimeout(context.Background(), s.handleTimeout)
	defer cancel()

	if err := s.process(ctx, msg.Subject, msg.Data); err != nil {
		s.metrics.SessionEventErrorsTotal.Add(ctx, 1)
		log.Error().
			Err(err).
			Str("subject", msg.Subject).
			Msg("Failed to handle session event")
	}
}

func (s *Subscriber) process(ctx context.Context, subject string, data []byte) error {
	eventType, err := s.eventType(subject)
	if err != nil {
		return err
	}

	var msg SessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal session event: %w", err)
	}

	event, err := s.decode(eventType, msg)
	if err != nil {
		return err
	}

	s.metrics.SessionEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(event.Type))))

	s.record(ctx, event)

	if err := s.handler.HandleEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to apply %s event: %w", event.Type, err)
	}

	log.Info().
		Str("type", string(event.Type)).
		Str("principal_id", event.Principal.PrincipalID.String()).
		Msg("Session event processed")

	return nil
}

func (s *Subscriber) eventType(subject string) (models.SessionEventType, error) {
	name, ok := strings.CutPrefix(subject, s.subjectPrefix+".")
	if !ok {
		return "", fmt.Errorf("unexpected subject: %s", subject)
	}

	switch t := models.SessionEventType(name); t {
	case models.SessionSignedIn, models.SessionSignedOut, models.SessionTokenRefreshed:
		return t, nil
	default:
		return "", fmt.Errorf("unknown session event type: %q", name)
	}
}

// decode builds the event from the message. When an access token is
// attached it is the source of truth for the principal; a token which fails
// verification turns the event into a sign out.
func (s *Subscriber) decode(eventType models.SessionEventType, msg SessionMessage) (models.SessionEvent, error) {
	principalID, err := uuid.Parse(msg.PrincipalID)
	if err != nil {
		return models.SessionEvent{}, fmt.Errorf("invalid principal id %q: %w", msg.PrincipalID, err)
	}

	event := models.SessionEvent{
		Type:       eventType,
		Principal:  models.Principal{PrincipalID: principalID, Email: msg.Email},
		OccurredAt: s.clock.Now(),
	}

	if msg.AccessToken != "" && s.verifier != nil && eventType != models.SessionSignedOut {
		principal, err := s.verifier.Verify(msg.AccessToken)
		if err == nil && principal.PrincipalID != principalID {
			err = errors.New("token subject does not match principal")
		}
		if err != nil {
			log.Warn().
				Err(err).
				Str("principal_id", principalID.String()).
				Str("type", string(eventType)).
				Msg("Access token rejected, treating as sign out")

			event.Type = models.SessionSignedOut
			return event, nil
		}

		event.Principal = principal
		return event, nil
	}

	if msg.SessionID != "" {
		sessionID, err := uuid.Parse(msg.SessionID)
		if err != nil {
			return models.SessionEvent{}, fmt.Errorf("invalid session id %q: %w", msg.SessionID, err)
		}

		event.Principal.Session = &models.Session{
			SessionID:   sessionID,
			PrincipalID: principalID,
		}
		if msg.ExpiresAt != nil {
			event.Principal.Session.ExpiresAt = *msg.ExpiresAt
		}
	}

	return event, nil
}

// record keeps the session store in step with the event stream. Failures
// are logged and never block the event.
func (s *Subscriber) record(ctx context.Context, event models.SessionEvent) {
	if s.sessions == nil {
		return
	}

	session := event.Principal.Session

	var err error
	switch event.Type {
	case models.SessionSignedIn, models.SessionTokenRefreshed:
		if session == nil || session.SessionID == uuid.Nil {
			return
		}
		session.LastUsedAt = event.OccurredAt
		err = s.sessions.Save(ctx, session)

	case models.SessionSignedOut:
		if session != nil && session.SessionID != uuid.Nil {
			err = s.sessions.Delete(ctx, session.SessionID)
			if errors.Is(err, store.ErrSessionNotFound) {
				err = nil
			}
			break
		}
		_, err = s.sessions.DeleteByPrincipal(ctx, event.Principal.PrincipalID)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("principal_id", event.Principal.PrincipalID.String()).
			Msg("Failed to record session")
	}
}
