// Package retry re-runs short, transient operations (gateway calls, archive writes)
// with capped exponential backoff and optional jitter.
//
// It is not the payment retry scheduler; long-horizon payment retries live in
// internal/recovery. This package only smooths over blips such as timeouts and
// dropped connections within a single attempt.
//
//	res, err := retry.DoValue(ctx, retry.DefaultConfig(), func(ctx context.Context) (Result, error) {
//	    return gateway.Charge(ctx, req)
//	}, isTransient)
package retry
