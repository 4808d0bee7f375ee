package recovery

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func record(id, paymentID string, at time.Time) AttemptRecord {
	return AttemptRecord{ID: id, PaymentID: paymentID, AttemptNumber: 1, ScheduledTime: at, CreatedAt: t0}
}

func TestScheduleQueue_DueOrder(t *testing.T) {
	q := NewScheduleQueue(func() time.Time { return t0 })
	q.Insert(record("a", "p1", t0.Add(1*time.Hour)))
	q.Insert(record("b", "p3", t0.Add(3*time.Hour)))
	q.Insert(record("c", "p2", t0.Add(2*time.Hour)))

	now := t0.Add(3 * time.Hour)
	var got []string
	for {
		rec, ok := q.PeekDue(now)
		if !ok {
			break
		}
		got = append(got, rec.PaymentID)
		require.True(t, q.MarkCompleted(rec.PaymentID))
	}

	assert.Equal(t, []string{"p1", "p2", "p3"}, got)
	assert.Zero(t, q.Pending())
	assert.Equal(t, 3, q.Len())
}

func TestScheduleQueue_PeekDueNeverReturnsFuture(t *testing.T) {
	q := NewScheduleQueue(nil)
	q.Insert(record("a", "p1", t0.Add(time.Minute)))

	_, ok := q.PeekDue(t0)
	assert.False(t, ok)

	rec, ok := q.PeekDue(t0.Add(time.Minute))
	require.True(t, ok, "a record due exactly now is due")
	assert.Equal(t, "a", rec.ID)
}

func TestScheduleQueue_StableTies(t *testing.T) {
	q := NewScheduleQueue(nil)
	for i := 0; i < 5; i++ {
		q.Insert(record(fmt.Sprint(i), fmt.Sprintf("p%d", i), t0))
	}

	var got []string
	for {
		rec, ok := q.PeekDue(t0)
		if !ok {
			break
		}
		got = append(got, rec.ID)
		q.complete(rec.ID)
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, got)

	snap := q.Snapshot()
	for i, rec := range snap {
		assert.Equal(t, fmt.Sprint(i), rec.ID)
		assert.True(t, rec.Completed)
	}
}

func TestScheduleQueue_MarkCompletedIdempotent(t *testing.T) {
	q := NewScheduleQueue(func() time.Time { return t0 })
	q.Insert(record("a", "p1", t0))

	assert.True(t, q.MarkCompleted("p1"))
	before := q.Snapshot()

	assert.False(t, q.MarkCompleted("p1"))
	assert.Equal(t, before, q.Snapshot())
	assert.False(t, q.MarkCompleted("missing"))
	assert.False(t, q.complete("a"))
}

func TestScheduleQueue_MarkCompletedEarliestFirst(t *testing.T) {
	q := NewScheduleQueue(nil)
	q.Insert(record("late", "p1", t0.Add(2*time.Hour)))
	q.Insert(record("early", "p1", t0.Add(time.Hour)))

	require.True(t, q.MarkCompleted("p1"))

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "early", snap[0].ID)
	assert.True(t, snap[0].Completed)
	assert.False(t, snap[1].Completed)

	next, ok := q.NextDue()
	require.True(t, ok)
	assert.Equal(t, t0.Add(2*time.Hour), next)
}

func TestScheduleQueue_SnapshotIsCopy(t *testing.T) {
	q := NewScheduleQueue(nil)
	q.Insert(record("a", "p1", t0))

	snap := q.Snapshot()
	snap[0].Completed = true

	rec, ok := q.PeekDue(t0)
	require.True(t, ok)
	assert.False(t, rec.Completed)
}

func TestScheduleQueue_Prune(t *testing.T) {
	now := t0
	q := NewScheduleQueue(func() time.Time { return now })
	q.Insert(record("old", "p1", t0))
	q.Insert(record("recent", "p2", t0))
	q.Insert(record("pending", "p3", t0))

	require.True(t, q.complete("old"))
	now = t0.Add(48 * time.Hour)
	require.True(t, q.complete("recent"))

	removed := q.Prune(t0.Add(24 * time.Hour))
	require.Len(t, removed, 1)
	assert.Equal(t, "old", removed[0].ID)

	snap := q.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "recent", snap[0].ID)
	assert.Equal(t, "pending", snap[1].ID)

	rec, ok := q.PeekDue(now)
	require.True(t, ok)
	assert.Equal(t, "pending", rec.ID)
}

func TestScheduleQueue_ConcurrentInsert(t *testing.T) {
	q := NewScheduleQueue(nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Insert(record(fmt.Sprint(i), fmt.Sprintf("p%d", i), t0.Add(time.Duration(i%7)*time.Minute)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, q.Len())
	snap := q.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.False(t, snap[i].ScheduledTime.Before(snap[i-1].ScheduledTime))
	}
}

func TestAttemptRecord_Due(t *testing.T) {
	rec := record("a", "p1", t0.Add(time.Hour))

	assert.False(t, rec.Due(t0))
	assert.True(t, rec.Due(t0.Add(time.Hour)))
	assert.True(t, rec.Due(t0.Add(2*time.Hour)))

	rec.Completed = true
	assert.False(t, rec.Due(t0.Add(2*time.Hour)))
}

func TestScheduleQueue_ExpiredAndForget(t *testing.T) {
	now := t0
	q := NewScheduleQueue(func() time.Time { return now })
	q.Insert(record("done", "p1", t0))
	q.Insert(record("pending", "p2", t0))
	require.True(t, q.complete("done"))

	now = t0.Add(48 * time.Hour)
	cutoff := t0.Add(24 * time.Hour)
	exp := q.Expired(cutoff)
	require.Len(t, exp, 1)
	assert.Equal(t, "done", exp[0].ID)
	assert.Equal(t, 2, q.Len(), "Expired does not remove")

	assert.Equal(t, 1, q.Forget([]string{"done", "pending", "unknown"}))
	snap := q.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "pending", snap[0].ID)
	assert.Zero(t, q.Forget(nil))
}

func TestScheduleQueue_PruneReleasesHeapEntries(t *testing.T) {
	now := t0
	q := NewScheduleQueue(func() time.Time { return now })
	q.Insert(record("first", "p1", t0))
	for i := 0; i < 10; i++ {
		q.Insert(record(fmt.Sprintf("later-%d", i), fmt.Sprintf("p%d", i+2), t0.Add(time.Duration(i+1)*time.Hour)))
	}
	// completed entries behind the pending top of the heap
	for i := 0; i < 10; i++ {
		require.True(t, q.complete(fmt.Sprintf("later-%d", i)))
	}

	now = t0.Add(48 * time.Hour)
	require.Len(t, q.Prune(t0.Add(24*time.Hour)), 10)

	q.mu.Lock()
	heapLen := len(q.pending)
	q.mu.Unlock()
	assert.Equal(t, 1, heapLen)

	rec, ok := q.PeekDue(now)
	require.True(t, ok)
	assert.Equal(t, "first", rec.ID)
}
