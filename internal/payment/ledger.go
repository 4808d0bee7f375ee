package payment

import (
	"sort"
	"sync"
	"time"

	"payrecovery/internal/shared"
)

// Ledger owns the set of payments under recovery and their aggregate stats.
// It is safe for concurrent use; all accessors return copies.
type Ledger struct {
	mu       sync.RWMutex
	payments map[string]*Payment
	stats    Stats
}

func NewLedger() *Ledger {
	return &Ledger{payments: make(map[string]*Payment)}
}

// RecordFailure adds a new failed payment. A payment ID can be recorded only once.
func (l *Ledger) RecordFailure(p Payment) (Payment, error) {
	if p.ID == "" {
		return Payment{}, shared.Validationf("payment id is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.payments[p.ID]; ok {
		return Payment{}, shared.Conflictf("payment %s already recorded", p.ID)
	}
	p.Status = StatusFailed
	p.LastFailureCode = p.FailureCode
	stored := p
	l.payments[p.ID] = &stored
	l.stats.TotalFailed++
	l.stats.RevenueLostCents += p.AmountCents
	return stored, nil
}

func (l *Ledger) Get(id string) (Payment, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.payments[id]
	if !ok {
		return Payment{}, shared.NotFoundf("payment %s", id)
	}
	return *p, nil
}

// List returns all payments, oldest first.
func (l *Ledger) List() []Payment {
	l.mu.RLock()
	out := make([]Payment, 0, len(l.payments))
	for _, p := range l.payments {
		out = append(out, *p)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (l *Ledger) MarkScheduled(id string, next time.Time) (Payment, error) {
	return l.update(id, StatusScheduled, func(p *Payment) {
		p.NextRetryAt = next
	})
}

// SetFirstRetry records the due time of the first retry. It changes nothing when the
// dispatcher has already picked the payment up, and returns the current state.
func (l *Ledger) SetFirstRetry(id string, next time.Time) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.lookupLocked(id)
	if err != nil {
		return Payment{}, err
	}
	if p.Status == StatusScheduled && p.NextRetryAt.IsZero() {
		p.NextRetryAt = next
	}
	return *p, nil
}

func (l *Ledger) MarkRetrying(id string, at time.Time) (Payment, error) {
	return l.update(id, StatusRetrying, func(p *Payment) {
		p.Attempts++
		p.LastAttemptAt = at
		p.NextRetryAt = time.Time{}
	})
}

// RecordDecline notes a declined retry. The payment must be retrying.
func (l *Ledger) RecordDecline(id, code string, attempts int, at time.Time) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.lookupLocked(id)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusRetrying {
		return Payment{}, shared.Conflictf("payment %s is %s, not retrying", id, p.Status)
	}
	p.LastFailureCode = code
	p.Attempts = attempts
	p.LastAttemptAt = at
	return *p, nil
}

func (l *Ledger) MarkRecovered(id string, at time.Time) (Payment, error) {
	return l.update(id, StatusRecovered, func(p *Payment) {
		p.RecoveredAt = at
		l.stats.TotalRecovered++
		l.stats.RevenueRecoveredCents += p.AmountCents
	})
}

func (l *Ledger) MarkAbandoned(id string) (Payment, error) {
	return l.update(id, StatusAbandoned, func(p *Payment) {
		p.NextRetryAt = time.Time{}
		l.stats.TotalAbandoned++
	})
}

// Stats returns the aggregate counters with a freshly computed recovery rate.
func (l *Ledger) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.stats
	if s.TotalFailed > 0 {
		s.RecoveryRate = float64(s.TotalRecovered) / float64(s.TotalFailed) * 100
	}
	return s
}

func (l *Ledger) update(id string, next Status, apply func(p *Payment)) (Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, err := l.lookupLocked(id)
	if err != nil {
		return Payment{}, err
	}
	if !p.Status.canMoveTo(next) {
		return Payment{}, shared.Conflictf("payment %s cannot move from %s to %s", id, p.Status, next)
	}
	p.Status = next
	apply(p)
	return *p, nil
}

func (l *Ledger) lookupLocked(id string) (*Payment, error) {
	p, ok := l.payments[id]
	if !ok {
		return nil, shared.NotFoundf("payment %s", id)
	}
	return p, nil
}
