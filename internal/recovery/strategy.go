package recovery

import (
	"math"
	"sort"
	"time"
)

// DefaultPolicyCode names the policy applied to unrecognized failure codes.
const DefaultPolicyCode = "default"

// Known failure codes.
const (
	CodeInsufficientFunds = "insufficient_funds"
	CodeCardDeclined      = "card_declined"
	CodeExpiredCard       = "expired_card"
	CodeProcessingError   = "processing_error"
	CodeIncorrectCVC      = "incorrect_cvc"
)

// FailurePolicy is the backoff policy associated with a failure reason.
type FailurePolicy struct {
	FailureCode    string  `json:"failure_code"`
	BaseDelayHours float64 `json:"base_delay_hours"`
	MaxAttempts    int     `json:"max_attempts"`
	Message        string  `json:"message"`
}

// StrategyCatalog maps failure codes to policies. It is immutable after construction
// and safe for concurrent use.
type StrategyCatalog struct {
	policies map[string]FailurePolicy
	fallback FailurePolicy
}

var defaultPolicy = FailurePolicy{
	FailureCode:    DefaultPolicyCode,
	BaseDelayHours: 24,
	MaxAttempts:    4,
	Message:        "Please try again",
}

// DefaultCatalog returns the built-in policy table.
func DefaultCatalog() *StrategyCatalog {
	return NewStrategyCatalog(
		FailurePolicy{CodeInsufficientFunds, 72, 3, "Please ensure sufficient funds are available"},
		FailurePolicy{CodeCardDeclined, 24, 4, "Please check your card details"},
		FailurePolicy{CodeExpiredCard, 1, 1, "Your card has expired. Please update payment method"},
		FailurePolicy{CodeProcessingError, 1, 4, "A temporary processing error occurred"},
		FailurePolicy{CodeIncorrectCVC, 1, 2, "Please verify your card security code"},
	)
}

// NewStrategyCatalog builds a catalog from the given policies. A policy whose code is
// DefaultPolicyCode replaces the built-in fallback.
func NewStrategyCatalog(policies ...FailurePolicy) *StrategyCatalog {
	c := &StrategyCatalog{
		policies: make(map[string]FailurePolicy, len(policies)),
		fallback: defaultPolicy,
	}
	for _, p := range policies {
		if p.FailureCode == DefaultPolicyCode {
			c.fallback = p
			continue
		}
		c.policies[p.FailureCode] = p
	}
	return c
}

// Strategy returns the policy for code, or the default policy when code is unknown.
func (c *StrategyCatalog) Strategy(code string) FailurePolicy {
	if p, ok := c.policies[code]; ok {
		return p
	}
	return c.fallback
}

// Known reports whether code has a dedicated policy.
func (c *StrategyCatalog) Known(code string) bool {
	_, ok := c.policies[code]
	return ok
}

// ShouldRetry reports whether another attempt is allowed after attemptNumber attempts.
func (c *StrategyCatalog) ShouldRetry(code string, attemptNumber int) bool {
	return attemptNumber < c.Strategy(code).MaxAttempts
}

// NextDelay returns BaseDelayHours * 2^attemptNumber.
func (c *StrategyCatalog) NextDelay(code string, attemptNumber int) time.Duration {
	hours := c.Strategy(code).BaseDelayHours * math.Pow(2, float64(attemptNumber))
	return time.Duration(hours * float64(time.Hour))
}

// Codes returns the known failure codes in lexical order.
func (c *StrategyCatalog) Codes() []string {
	codes := make([]string, 0, len(c.policies))
	for code := range c.policies {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
