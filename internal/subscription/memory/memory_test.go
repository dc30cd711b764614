package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/subscription"
)

func TestStoreSaveGetListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	sub := subscription.Subscription{ID: "sub-1", Topic: "ai news", Frequency: "daily"}
	require.NoError(t, s.Save(ctx, sub))

	got, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	require.Equal(t, sub, got)

	daily, err := s.ListByFrequency(ctx, "daily")
	require.NoError(t, err)
	require.Len(t, daily, 1)

	weekly, err := s.ListByFrequency(ctx, "weekly")
	require.NoError(t, err)
	require.Empty(t, weekly)

	require.NoError(t, s.Delete(ctx, "sub-1"))
	_, err = s.Get(ctx, "sub-1")
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestStoreGetMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestStoreDeleteMissingReturnsErrNotFound(t *testing.T) {
	s := New()
	err := s.Delete(context.Background(), "nope")
	require.ErrorIs(t, err, subscription.ErrNotFound)
}

func TestSinkRecordsDeliveriesInOrder(t *testing.T) {
	sink := NewSink()
	ctx := context.Background()

	require.NoError(t, sink.Deliver(ctx, subscription.Delivery{Subscription: subscription.Subscription{ID: "a"}, Status: "completed"}))
	require.NoError(t, sink.Deliver(ctx, subscription.Delivery{Subscription: subscription.Subscription{ID: "b"}, Status: "failed"}))

	got := sink.Deliveries()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].Subscription.ID)
	require.Equal(t, "b", got[1].Subscription.ID)
}
