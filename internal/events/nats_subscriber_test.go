package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tenantgate/internal/models"
	"github.com/wolfeidau/tenantgate/internal/store"
	"github.com/wolfeidau/tenantgate/internal/store/memory"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []models.SessionEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event models.SessionEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) received() []models.SessionEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.SessionEvent(nil), h.events...)
}

type stubVerifier struct {
	principal models.Principal
	err       error
}

func (v stubVerifier) Verify(string) (models.Principal, error) {
	return v.principal, v.err
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSubscriber(t *testing.T, handler Handler, verifier Verifier, sessions store.SessionStore) *Subscriber {
	t.Helper()
	s, err := NewSubscriber(nil, Config{
		Handler:  handler,
		Verifier: verifier,
		Sessions: sessions,
		Clock:    clockwork.NewFakeClockAt(testNow),
	})
	require.NoError(t, err)
	return s
}

func encode(t *testing.T, msg SessionMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestNewSubscriber(t *testing.T) {
	_, err := NewSubscriber(nil, Config{})
	require.Error(t, err)

	s, err := NewSubscriber(nil, Config{Handler: &recordingHandler{}})
	require.NoError(t, err)
	require.Equal(t, DefaultSubjectPrefix, s.subjectPrefix)
	require.Equal(t, DefaultHandleTimeout, s.handleTimeout)

	err = s.Start(context.Background())
	require.Error(t, err)
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	principalID := uuid.New()
	sessionID := uuid.New()
	// the memory store checks expiry against the wall clock
	expiresAt := time.Now().Add(time.Hour)

	t.Run("signed in records session", func(t *testing.T) {
		handler := &recordingHandler{}
		sessions := memory.NewSessionStore()
		s := newTestSubscriber(t, handler, nil, sessions)

		err := s.process(ctx, "identity.session.signed_in", encode(t, SessionMessage{
			PrincipalID: principalID.String(),
			Email:       "owner@example.com",
			SessionID:   sessionID.String(),
			ExpiresAt:   &expiresAt,
		}))
		require.NoError(t, err)

		events := handler.received()
		require.Len(t, events, 1)
		require.Equal(t, models.SessionSignedIn, events[0].Type)
		require.Equal(t, principalID, events[0].Principal.PrincipalID)
		require.Equal(t, "owner@example.com", events[0].Principal.Email)
		require.Equal(t, sessionID, events[0].Principal.Session.SessionID)
		require.Equal(t, testNow, events[0].OccurredAt)

		session, err := sessions.Get(ctx, sessionID)
		require.NoError(t, err)
		require.Equal(t, principalID, session.PrincipalID)
		require.True(t, expiresAt.Equal(session.ExpiresAt))
		require.Equal(t, testNow, session.LastUsedAt)
	})

	t.Run("signed out removes session", func(t *testing.T) {
		handler := &recordingHandler{}
		sessions := memory.NewSessionStore()
		require.NoError(t, sessions.Save(ctx, &models.Session{SessionID: sessionID, PrincipalID: principalID}))
		s := newTestSubscriber(t, handler, nil, sessions)

		err := s.process(ctx, "identity.session.signed_out", encode(t, SessionMessage{
			PrincipalID: principalID.String(),
			SessionID:   sessionID.String(),
		}))
		require.NoError(t, err)

		_, err = sessions.Get(ctx, sessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
		require.Equal(t, models.SessionSignedOut, handler.received()[0].Type)
	})

	t.Run("signed out without session removes all principal sessions", func(t *testing.T) {
		sessions := memory.NewSessionStore()
		other := uuid.New()
		require.NoError(t, sessions.Save(ctx, &models.Session{SessionID: sessionID, PrincipalID: principalID}))
		require.NoError(t, sessions.Save(ctx, &models.Session{SessionID: other, PrincipalID: principalID}))
		s := newTestSubscriber(t, &recordingHandler{}, nil, sessions)

		err := s.process(ctx, "identity.session.signed_out", encode(t, SessionMessage{
			PrincipalID: principalID.String(),
		}))
		require.NoError(t, err)

		_, err = sessions.Get(ctx, sessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
		_, err = sessions.Get(ctx, other)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("verified token supplies principal", func(t *testing.T) {
		handler := &recordingHandler{}
		verified := models.Principal{
			PrincipalID: principalID,
			Email:       "from-token@example.com",
			Session:     &models.Session{SessionID: sessionID, PrincipalID: principalID, ExpiresAt: expiresAt},
		}
		s := newTestSubscriber(t, handler, stubVerifier{principal: verified}, nil)

		err := s.process(ctx, "identity.session.token_refreshed", encode(t, SessionMessage{
			PrincipalID: principalID.String(),
			Email:       "from-message@example.com",
			AccessToken: "token",
		}))
		require.NoError(t, err)

		events := handler.received()
		require.Equal(t, models.SessionTokenRefreshed, events[0].Type)
		require.Equal(t, "from-token@example.com", events[0].Principal.Email)
		require.Equal(t, sessionID, events[0].Principal.Session.SessionID)
	})

	tokenTests := []struct {
		name     string
		verifier stubVerifier
	}{
		{
			name:     "invalid token",
			verifier: stubVerifier{err: errors.New("invalid token")},
		},
		{
			name:     "token for another principal",
			verifier: stubVerifier{principal: models.Principal{PrincipalID: uuid.New()}},
		},
	}

	for _, tt := range tokenTests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{}
			s := newTestSubscriber(t, handler, tt.verifier, nil)

			err := s.process(ctx, "identity.session.signed_in", encode(t, SessionMessage{
				PrincipalID: principalID.String(),
				AccessToken: "token",
			}))
			require.NoError(t, err)

			events := handler.received()
			require.Len(t, events, 1)
			require.Equal(t, models.SessionSignedOut, events[0].Type)
			require.Equal(t, principalID, events[0].Principal.PrincipalID)
		})
	}

	t.Run("handler error", func(t *testing.T) {
		handler := &recordingHandler{err: errors.New("boom")}
		s := newTestSubscriber(t, handler, nil, nil)

		err := s.process(ctx, "identity.session.signed_in", encode(t, SessionMessage{
			PrincipalID: principalID.String(),
		}))
		require.ErrorContains(t, err, "boom")
	})
}

func TestProcessRejects(t *testing.T) {
	valid := encode(t, SessionMessage{PrincipalID: uuid.NewString()})

	tests := []struct {
		name    string
		subject string
		data    []byte
	}{
		{name: "foreign subject", subject: "orders.created", data: valid},
		{name: "unknown event", subject: "identity.session.password_reset", data: valid},
		{name: "malformed json", subject: "identity.session.signed_in", data: []byte("{")},
		{name: "invalid principal id", subject: "identity.session.signed_in", data: []byte(`{"principal_id":"nope"}`)},
		{name: "invalid session id", subject: "identity.session.signed_in", data: []byte(`{"principal_id":"` + uuid.NewString() + `","session_id":"nope"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &recordingHandler{}
			s := newTestSubscriber(t, handler, nil, nil)

			err := s.process(context.Background(), tt.subject, tt.data)
			require.Error(t, err)
			require.Empty(t, handler.received())
		})
	}
}

func TestHandleMessage(t *testing.T) {
	handler := &recordingHandler{}
	s := newTestSubscriber(t, handler, nil, nil)

	s.handleMessage(&nats.Msg{
		Subject: "identity.session.signed_in",
		Data:    encode(t, SessionMessage{PrincipalID: uuid.NewString()}),
	})
	// errors are logged and dropped
	s.handleMessage(&nats.Msg{Subject: "identity.session.signed_in", Data: []byte("{")})

	require.Len(t, handler.received(), 1)
}
