package recovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Records come out ordered by scheduled time, ties in insertion order.
func TestScheduleQueue_DrainOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("drain is sorted and stable", prop.ForAll(
		func(offsets []int) bool {
			q := NewScheduleQueue(func() time.Time { return t0 })
			for i, off := range offsets {
				q.Insert(record(fmt.Sprintf("%06d", i), "p", t0.Add(time.Duration(off)*time.Minute)))
			}

			far := t0.Add(24 * time.Hour)
			var prev AttemptRecord
			for n := 0; ; n++ {
				rec, ok := q.PeekDue(far)
				if !ok {
					return n == len(offsets) && q.Pending() == 0
				}
				if n > 0 {
					if rec.ScheduledTime.Before(prev.ScheduledTime) {
						return false
					}
					if rec.ScheduledTime.Equal(prev.ScheduledTime) && rec.ID < prev.ID {
						return false
					}
				}
				if !q.complete(rec.ID) {
					return false
				}
				prev = rec
			}
		},
		gen.SliceOf(gen.IntRange(0, 120)),
	))

	properties.TestingRun(t)
}

// PeekDue never hands out a record scheduled after now.
func TestScheduleQueue_NeverFutureDatedProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("due record is not in the future", prop.ForAll(
		func(offsets []int, nowOffset int) bool {
			q := NewScheduleQueue(func() time.Time { return t0 })
			for i, off := range offsets {
				q.Insert(record(fmt.Sprint(i), "p", t0.Add(time.Duration(off)*time.Minute)))
			}
			now := t0.Add(time.Duration(nowOffset) * time.Minute)
			rec, ok := q.PeekDue(now)
			return !ok || !rec.ScheduledTime.After(now)
		},
		gen.SliceOf(gen.IntRange(-60, 600)),
		gen.IntRange(-60, 600),
	))

	properties.TestingRun(t)
}

// A scheduled retry is never due before it was created, whatever the hour shift does.
func TestScheduler_ScheduledNotBeforeCreatedProperty(t *testing.T) {
	codes := append([]string{""}, DefaultCatalog().Codes()...)
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("ScheduledTime >= CreatedAt", prop.ForAll(
		func(minuteOfDay, attemptIndex, codeIdx int) bool {
			now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(time.Duration(minuteOfDay) * time.Minute)
			s := NewScheduler(Config{
				Location: time.UTC,
				Now:      func() time.Time { return now },
				Logger:   quietLogger(),
			})
			rec, ok, err := s.ScheduleRetry("pay", attemptIndex, codes[codeIdx])
			if err != nil {
				return false
			}
			return !ok || !rec.ScheduledTime.Before(rec.CreatedAt)
		},
		gen.IntRange(0, 24*60-1),
		gen.IntRange(0, 5),
		gen.IntRange(0, len(codes)-1),
	))

	properties.TestingRun(t)
}
