package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leduyvuong/ban-hang/internal/domain"
)

func TestOutboxEnqueueAssignsID(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "o-1",
		EventType:     "order.confirmed",
		Payload:       []byte(`{}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}

func TestOutboxPullPendingKeepsInsertionOrder(t *testing.T) {
	repo := NewOutboxRepository()

	first, err := repo.Enqueue(domain.OutboxMessage{EventType: "order.confirmed"})
	require.NoError(t, err)
	second, err := repo.Enqueue(domain.OutboxMessage{EventType: "stock.low"})
	require.NoError(t, err)

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestOutboxPullPendingHonorsLimit(t *testing.T) {
	repo := NewOutboxRepository()
	for i := 0; i < 5; i++ {
		_, err := repo.Enqueue(domain.OutboxMessage{EventType: "order.confirmed"})
		require.NoError(t, err)
	}

	pending, err := repo.PullPending(2)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestOutboxMarkSentExcludesFromPending(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{EventType: "order.confirmed"})
	require.NoError(t, err)
	require.NoError(t, repo.MarkSent(msg.ID))

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.PendingCount)
}

func TestOutboxMarkFailedKeepsRecordOut(t *testing.T) {
	repo := NewOutboxRepository()

	msg, err := repo.Enqueue(domain.OutboxMessage{EventType: "order.confirmed"})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(msg.ID))

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxMarkUnknownID(t *testing.T) {
	repo := NewOutboxRepository()

	err := repo.MarkSent("missing")
	assert.True(t, errors.Is(err, domain.ErrOutboxPublish))
}

func TestOutboxStatsTracksOldestPending(t *testing.T) {
	repo := NewOutboxRepository()

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
	assert.True(t, stats.OldestPendingAt.IsZero())

	_, err = repo.Enqueue(domain.OutboxMessage{EventType: "order.confirmed"})
	require.NoError(t, err)
	_, err = repo.Enqueue(domain.OutboxMessage{EventType: "stock.low"})
	require.NoError(t, err)

	stats, err = repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())
}
