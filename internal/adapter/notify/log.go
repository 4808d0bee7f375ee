// Package notify delivers customer notifications. Only a logging notifier exists;
// real email delivery is left to an outer integration.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"payrecovery/internal/payment"
	"payrecovery/internal/shared"
)

var subjects = map[string]string{
	payment.TemplatePaymentFailed:   "Action required: payment failed",
	payment.TemplateRetryScheduled:  "We'll try your payment again",
	payment.TemplateRecoverySuccess: "Payment successful",
	payment.TemplateFinalNotice:     "Final notice: update your payment method",
}

// Log writes notifications to a logger instead of sending them.
type Log struct {
	logger *slog.Logger
}

var _ payment.Notifier = (*Log)(nil)

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notifier")}
}

// Subject returns the subject line for template, or an error for unknown templates.
func Subject(template string) (string, error) {
	s, ok := subjects[template]
	if !ok {
		return "", shared.Validationf("unknown notification template %q", template)
	}
	return s, nil
}

func (l *Log) Notify(ctx context.Context, n payment.Notification) error {
	subject, err := Subject(n.Template)
	if err != nil {
		return err
	}
	attrs := []any{
		"template", n.Template,
		"email", n.To,
		"subject", subject,
		"payment_id", n.PaymentID,
		"amount", formatAmount(n.AmountCents, n.Currency),
	}
	if n.Message != "" {
		attrs = append(attrs, "message", n.Message)
	}
	if !n.NextRetryAt.IsZero() {
		attrs = append(attrs, "next_retry_at", n.NextRetryAt)
	}
	l.logger.InfoContext(ctx, "notification sent", attrs...)
	return nil
}

func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
