package recovery

import "sync"

// FallbackHour is recommended when there is no evidence favouring another hour.
const FallbackHour = 10

// Analytics is a read-only snapshot of retry outcomes bucketed by hour of day.
type Analytics struct {
	TotalAttempts      int         `json:"total_attempts"`
	SuccessfulAttempts int         `json:"successful_attempts"`
	SuccessRate        float64     `json:"success_rate"`
	AttemptsByHour     map[int]int `json:"attempts_by_hour"`
	SuccessByHour      map[int]int `json:"success_by_hour"`
	RecommendedHour    int         `json:"recommended_hour"`
}

// AnalyticsTracker counts attempts and successes per hour of day.
type AnalyticsTracker struct {
	mu         sync.Mutex
	attempts   [24]int
	successes  [24]int
	total      int
	successful int
}

// NewAnalyticsTracker creates an empty tracker.
func NewAnalyticsTracker() *AnalyticsTracker {
	return &AnalyticsTracker{}
}

func normalizeHour(h int) int {
	return ((h % 24) + 24) % 24
}

// RecordAttempt counts a dispatched attempt at hour.
func (t *AnalyticsTracker) RecordAttempt(hour int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[normalizeHour(hour)]++
	t.total++
}

// RecordSuccess counts a successful attempt at hour.
func (t *AnalyticsTracker) RecordSuccess(hour int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes[normalizeHour(hour)]++
	t.successful++
}

// SuccessRate returns successful/total*100, or 0 when nothing was attempted.
func (t *AnalyticsTracker) SuccessRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.successRateLocked()
}

func (t *AnalyticsTracker) successRateLocked() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.successful) / float64(t.total) * 100
}

// RecommendedHour returns the hour with the best success ratio among hours that saw at
// least one attempt. Earlier hours win ties. FallbackHour is returned until some hour
// has a non-zero ratio.
func (t *AnalyticsTracker) RecommendedHour() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recommendedHourLocked()
}

func (t *AnalyticsTracker) recommendedHourLocked() int {
	best, bestRate := FallbackHour, 0.0
	for h := 0; h < 24; h++ {
		if t.attempts[h] == 0 {
			continue
		}
		rate := float64(t.successes[h]) / float64(t.attempts[h])
		if rate > bestRate {
			best, bestRate = h, rate
		}
	}
	return best
}

// Snapshot returns a copy of the counters. Hour maps only contain non-zero buckets.
func (t *AnalyticsTracker) Snapshot() Analytics {
	t.mu.Lock()
	defer t.mu.Unlock()

	a := Analytics{
		TotalAttempts:      t.total,
		SuccessfulAttempts: t.successful,
		SuccessRate:        t.successRateLocked(),
		AttemptsByHour:     make(map[int]int),
		SuccessByHour:      make(map[int]int),
		RecommendedHour:    t.recommendedHourLocked(),
	}
	for h := 0; h < 24; h++ {
		if t.attempts[h] > 0 {
			a.AttemptsByHour[h] = t.attempts[h]
		}
		if t.successes[h] > 0 {
			a.SuccessByHour[h] = t.successes[h]
		}
	}
	return a
}
