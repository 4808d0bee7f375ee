// Package payment owns the state of failed payments and drives their recovery.
//
// Ledger holds payments and aggregate stats. Service ingests failure reports and
// schedules the first retry. Processor is the retry scheduler's default handler: it
// re-charges through a Charger, then marks the payment recovered, schedules the next
// attempt or abandons it.
//
// Lifecycle:
//
//	failed -> scheduled -> (retrying -> scheduled)* -> recovered | abandoned
package payment
