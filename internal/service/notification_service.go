package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"backend/internal/model"
	"backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// RealtimeSender is the soft real-time channel: per-user, per-role and
// per-request rooms. Delivery is attempted once, never retried.
type RealtimeSender interface {
	SendToUser(userID string, message []byte)
	SendToRole(role string, message []byte)
	SendToRequest(requestID string, message []byte)
	BroadcastAll(message []byte)
}

// ExternalSender is the out-of-band chat channel, keyed by each user's
// linked open id. Implemented by the lark package; faked in tests.
type ExternalSender interface {
	SendText(ctx context.Context, openID, text string) error
}

// Notifier fans workflow events out to both channels. Callers treat it as
// fire-and-forget: Notify never returns an error and never blocks on the
// external channel.
type Notifier interface {
	Notify(event Event)
}

const (
	externalMaxAttempts = 3
	externalSendTimeout = 30 * time.Second
)

type notificationService struct {
	users    repository.UserRepository
	realtime RealtimeSender
	external ExternalSender // nil when the chat channel is not configured
	log      *logrus.Entry

	// backoffBase is the linear backoff unit between external attempts
	// (attempt n waits n × backoffBase). Shortened in tests.
	backoffBase time.Duration

	wg sync.WaitGroup
}

// NewNotificationService builds the dispatcher. external may be nil.
func NewNotificationService(users repository.UserRepository, realtime RealtimeSender, external ExternalSender) Notifier {
	return &notificationService{
		users:       users,
		realtime:    realtime,
		external:    external,
		log:         logrus.WithField("component", "notifier"),
		backoffBase: time.Second,
	}
}

func (s *notificationService) Notify(event Event) {
	payload, err := event.Marshal()
	if err != nil {
		s.log.WithError(err).WithField("type", event.Type).Error("failed to marshal event")
		return
	}

	s.deliverRealtime(event.Audience, payload)

	if s.external == nil {
		return
	}

	// External delivery runs off the caller's critical path with its own
	// deadline; the triggering transition has already committed.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), externalSendTimeout)
		defer cancel()
		s.deliverExternal(ctx, event)
	}()
}

// Flush blocks until all in-flight external deliveries finish. Used by
// tests and graceful shutdown.
func (s *notificationService) Flush() {
	s.wg.Wait()
}

func (s *notificationService) deliverRealtime(a Audience, payload []byte) {
	switch {
	case a.UserID != "":
		s.realtime.SendToUser(a.UserID, payload)
	case a.Role != "":
		s.realtime.SendToRole(a.Role, payload)
	case a.RequestID != "":
		s.realtime.SendToRequest(a.RequestID, payload)
	case a.All:
		s.realtime.BroadcastAll(payload)
	default:
		s.log.Warn("event with empty audience dropped")
	}
}

func (s *notificationService) deliverExternal(ctx context.Context, event Event) {
	a := event.Audience
	switch {
	case a.UserID != "":
		user, err := s.users.GetByID(ctx, a.UserID)
		if err != nil {
			s.log.WithError(err).WithField("user_id", a.UserID).Warn("external delivery skipped: user lookup failed")
			return
		}
		s.sendExternalToUser(ctx, user, event)
	case a.Role != "":
		// Per-user fan-out with no batching; acceptable at fleet scale.
		users, err := s.users.ListByRole(ctx, a.Role)
		if err != nil {
			s.log.WithError(err).WithField("role", a.Role).Warn("external delivery skipped: role lookup failed")
			return
		}
		for i := range users {
			s.sendExternalToUser(ctx, &users[i], event)
		}
	case a.All:
		users, err := s.users.ListAll(ctx)
		if err != nil {
			s.log.WithError(err).Warn("external delivery skipped: user listing failed")
			return
		}
		for i := range users {
			s.sendExternalToUser(ctx, &users[i], event)
		}
	default:
		// Request rooms are realtime-only.
	}
}

// sendExternalToUser attempts the chat channel for one user, retrying
// transient network errors with linear backoff. All outcomes are logged and
// swallowed.
func (s *notificationService) sendExternalToUser(ctx context.Context, user *model.User, event Event) {
	if user.LarkOpenID == "" {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id": user.ID,
		"type":    event.Type,
	})

	for attempt := 1; attempt <= externalMaxAttempts; attempt++ {
		err := s.external.SendText(ctx, user.LarkOpenID, event.Message)
		if err == nil {
			log.WithField("attempt", attempt).Debug("external notification delivered")
			return
		}

		var netErr net.Error
		if !errors.As(err, &netErr) {
			log.WithError(err).Warn("external notification failed with non-network error, not retrying")
			return
		}

		log.WithError(err).WithField("attempt", attempt).Warn("external notification failed")
		if attempt == externalMaxAttempts {
			break
		}

		select {
		case <-time.After(time.Duration(attempt) * s.backoffBase):
		case <-ctx.Done():
			log.Warn("external notification abandoned: context cancelled")
			return
		}
	}

	log.Warn("external notification gave up after max attempts")
}
