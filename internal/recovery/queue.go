package recovery

import (
	"container/heap"
	"sort"
	"sync"
	"time"
)

// entry is the queue's mutable cell for a record. seq breaks ties between equal
// scheduled times in insertion order.
type entry struct {
	rec AttemptRecord
	seq uint64
}

func (e *entry) before(o *entry) bool {
	if e.rec.ScheduledTime.Equal(o.rec.ScheduledTime) {
		return e.seq < o.seq
	}
	return e.rec.ScheduledTime.Before(o.rec.ScheduledTime)
}

// pendingHeap is a min-heap of pending entries. Completed entries are dropped lazily
// when they reach the top.
type pendingHeap []*entry

func (h pendingHeap) Len() int           { return len(h) }
func (h pendingHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h pendingHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)        { *h = append(*h, x.(*entry)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// ScheduleQueue is a thread-safe, time-ordered collection of attempt records.
type ScheduleQueue struct {
	mu      sync.Mutex
	all     []*entry // sorted by (ScheduledTime, seq)
	pending pendingHeap
	byID    map[string]*entry
	nextSeq uint64
	now     func() time.Time
}

// NewScheduleQueue creates an empty queue. now stamps CompletedAt; nil means time.Now.
func NewScheduleQueue(now func() time.Time) *ScheduleQueue {
	if now == nil {
		now = time.Now
	}
	return &ScheduleQueue{byID: make(map[string]*entry), now: now}
}

// Insert adds rec in time order. Records with equal scheduled times keep insertion order.
func (q *ScheduleQueue) Insert(rec AttemptRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e := &entry{rec: rec, seq: q.nextSeq}
	q.nextSeq++

	i := sort.Search(len(q.all), func(i int) bool { return e.before(q.all[i]) })
	q.all = append(q.all, nil)
	copy(q.all[i+1:], q.all[i:])
	q.all[i] = e

	if rec.ID != "" {
		q.byID[rec.ID] = e
	}
	if !rec.Completed {
		heap.Push(&q.pending, e)
	}
}

// PeekDue returns the earliest pending record scheduled at or before now.
func (q *ScheduleQueue) PeekDue(now time.Time) (AttemptRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	top := q.top()
	if top == nil || top.rec.ScheduledTime.After(now) {
		return AttemptRecord{}, false
	}
	return top.rec, true
}

// NextDue returns the scheduled time of the earliest pending record.
func (q *ScheduleQueue) NextDue() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	top := q.top()
	if top == nil {
		return time.Time{}, false
	}
	return top.rec.ScheduledTime, true
}

// top drops completed entries from the heap and returns the earliest pending one.
func (q *ScheduleQueue) top() *entry {
	for len(q.pending) > 0 {
		if e := q.pending[0]; !e.rec.Completed {
			return e
		}
		heap.Pop(&q.pending)
	}
	return nil
}

// MarkCompleted completes the earliest pending record of paymentID. It reports whether
// a record changed; a second call for an already completed record is a no-op.
func (q *ScheduleQueue) MarkCompleted(paymentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.all {
		if e.rec.PaymentID == paymentID && !e.rec.Completed {
			q.completeLocked(e)
			return true
		}
	}
	return false
}

// complete completes the record with the given ID.
func (q *ScheduleQueue) complete(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byID[id]
	if !ok || e.rec.Completed {
		return false
	}
	q.completeLocked(e)
	return true
}

func (q *ScheduleQueue) completeLocked(e *entry) {
	e.rec.Completed = true
	e.rec.CompletedAt = q.now()
}

// Snapshot returns a point-in-time copy of all records in queue order.
func (q *ScheduleQueue) Snapshot() []AttemptRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]AttemptRecord, len(q.all))
	for i, e := range q.all {
		out[i] = e.rec
	}
	return out
}

// Pending returns the number of records not yet completed.
func (q *ScheduleQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.all {
		if !e.rec.Completed {
			n++
		}
	}
	return n
}

// Len returns the number of retained records.
func (q *ScheduleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.all)
}

// Prune removes completed records whose CompletedAt is before cutoff and returns them.
func (q *ScheduleQueue) Prune(cutoff time.Time) []AttemptRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(func(e *entry) bool { return expired(e, cutoff) })
}

// Expired returns copies of the records Prune(cutoff) would remove, leaving the queue as is.
func (q *ScheduleQueue) Expired(cutoff time.Time) []AttemptRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []AttemptRecord
	for _, e := range q.all {
		if expired(e, cutoff) {
			out = append(out, e.rec)
		}
	}
	return out
}

// Forget removes the completed records with the given IDs and returns how many went.
// Unknown and still pending IDs are ignored.
func (q *ScheduleQueue) Forget(ids []string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	drop := make(map[*entry]struct{}, len(ids))
	for _, id := range ids {
		if e, ok := q.byID[id]; ok && e.rec.Completed {
			drop[e] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return 0
	}
	removed := q.removeLocked(func(e *entry) bool {
		_, ok := drop[e]
		return ok
	})
	return len(removed)
}

func expired(e *entry, cutoff time.Time) bool {
	return e.rec.Completed && e.rec.CompletedAt.Before(cutoff)
}

// removeLocked drops matching entries and rebuilds the pending heap, so removed
// entries are not held until they would surface at the top.
func (q *ScheduleQueue) removeLocked(match func(e *entry) bool) []AttemptRecord {
	var removed []AttemptRecord
	kept := q.all[:0]
	for _, e := range q.all {
		if match(e) {
			removed = append(removed, e.rec)
			delete(q.byID, e.rec.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return nil
	}
	for i := len(kept); i < len(q.all); i++ {
		q.all[i] = nil
	}
	q.all = kept

	pending := make(pendingHeap, 0, len(q.pending))
	for _, e := range q.pending {
		if !e.rec.Completed {
			pending = append(pending, e)
		}
	}
	heap.Init(&pending)
	q.pending = pending
	return removed
}
