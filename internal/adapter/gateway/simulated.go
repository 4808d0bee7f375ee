// Package gateway provides the simulated payment gateway used in place of a real
// processor integration.
package gateway

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"payrecovery/internal/payment"
	"payrecovery/internal/shared"
)

// DefaultSuccessRate is the share of retries the simulated gateway approves.
const DefaultSuccessRate = 0.3

// Options configures a Simulated gateway.
type Options struct {
	// SuccessRate in [0, 1]. Zero means DefaultSuccessRate; use Never for 0.
	SuccessRate float64
	// OutageRate in [0, 1] is the share of charges failing with a transport error
	// before any decision is made.
	OutageRate float64
	// DeclineCodes are drawn uniformly for declined charges.
	DeclineCodes []string
	// Latency is slept before each answer, honoring ctx.
	Latency time.Duration
	Rand    *rand.Rand
}

// Never is a SuccessRate that declines every charge.
const Never = -1.0

// Simulated approves a fixed share of charges and declines the rest with a random code.
type Simulated struct {
	successRate float64
	outageRate  float64
	codes       []string
	latency     time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

var _ payment.Charger = (*Simulated)(nil)

func NewSimulated(opts Options) *Simulated {
	g := &Simulated{
		successRate: opts.SuccessRate,
		outageRate:  opts.OutageRate,
		codes:       append([]string(nil), opts.DeclineCodes...),
		latency:     opts.Latency,
		rnd:         opts.Rand,
	}
	if g.successRate == 0 {
		g.successRate = DefaultSuccessRate
	}
	if g.successRate < 0 {
		g.successRate = 0
	}
	if len(g.codes) == 0 {
		g.codes = []string{"card_declined"}
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return g
}

func (g *Simulated) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if req.PaymentID == "" {
		return payment.ChargeResult{}, shared.Validationf("payment id is required")
	}
	if g.latency > 0 {
		t := time.NewTimer(g.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return payment.ChargeResult{}, shared.Wrap(ctx.Err(), "gateway")
		case <-t.C:
		}
	}

	g.mu.Lock()
	if g.outageRate > 0 && g.rnd.Float64() < g.outageRate {
		g.mu.Unlock()
		return payment.ChargeResult{}, shared.DependencyFailuref("gateway unavailable")
	}
	roll := g.rnd.Float64()
	code := g.codes[g.rnd.Intn(len(g.codes))]
	g.mu.Unlock()

	if roll < g.successRate {
		return payment.ChargeResult{Success: true, TransactionID: "txn_" + uuid.NewString()}, nil
	}
	return payment.ChargeResult{FailureCode: code}, nil
}
