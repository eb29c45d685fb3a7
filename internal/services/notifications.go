package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
	"github.com/careconnect/careconnect-api/internal/models"
	"github.com/careconnect/careconnect-api/internal/store"
)

// InboxLimit caps how many notifications a listing returns.
const InboxLimit = 50

// NotificationService writes and reads per-user in-app notifications.
type NotificationService struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewNotificationService(st store.Store, log zerolog.Logger) *NotificationService {
	return &NotificationService{store: st, log: log, now: time.Now}
}

// Notify stores a notification for recipient. Failures are logged and
// swallowed so the originating request is never affected.
func (s *NotificationService) Notify(ctx context.Context, recipient primitive.ObjectID, typ, message string, appointment *primitive.ObjectID) {
	if recipient.IsZero() {
		return
	}
	n := &models.Notification{
		Recipient:   recipient,
		Type:        typ,
		Message:     message,
		Appointment: appointment,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Notifications().Create(ctx, n); err != nil {
		s.log.Warn().Err(err).
			Str("recipient", recipient.Hex()).
			Str("type", typ).
			Msg("notification not stored")
	}
}

type Inbox struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unreadCount"`
}

func (s *NotificationService) List(ctx context.Context, recipient primitive.ObjectID) (*Inbox, error) {
	items, err := s.store.Notifications().ListForRecipient(ctx, recipient, InboxLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.store.Notifications().CountUnread(ctx, recipient)
	if err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}
	if items == nil {
		items = []models.Notification{}
	}
	return &Inbox{Notifications: items, Unread: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, recipient, id primitive.ObjectID) error {
	err := s.store.Notifications().MarkRead(ctx, recipient, id)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound("notification")
	}
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipient primitive.ObjectID) (int64, error) {
	n, err := s.store.Notifications().MarkAllRead(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return n, nil
}
