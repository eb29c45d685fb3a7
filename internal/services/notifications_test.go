package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/careconnect/careconnect-api/internal/apperrors"
)

func TestInboxIsCappedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := primitive.NewObjectID()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < InboxLimit+5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		env.notify.now = func() time.Time { return at }
		env.notify.Notify(ctx, user, "test", "hello", nil)
	}

	inbox, err := env.notify.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, inbox.Notifications, InboxLimit)
	assert.EqualValues(t, InboxLimit+5, inbox.Unread)
	assert.True(t, inbox.Notifications[0].CreatedAt.After(inbox.Notifications[1].CreatedAt))
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, stranger := primitive.NewObjectID(), primitive.NewObjectID()
	env.notify.Notify(ctx, user, "test", "one", nil)
	env.notify.Notify(ctx, user, "test", "two", nil)

	inbox, err := env.notify.List(ctx, user)
	require.NoError(t, err)
	first := inbox.Notifications[0].ID

	assert.True(t, apperrors.Is(env.notify.MarkRead(ctx, stranger, first), apperrors.KindNotFound))
	require.NoError(t, env.notify.MarkRead(ctx, user, first))

	inbox, err = env.notify.List(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, inbox.Unread)

	n, err := env.notify.MarkAllRead(ctx, user)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	inbox, err = env.notify.List(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, inbox.Unread)
}
