// ABOUTME: Partial-failure recovery over batches of independent work items.
// ABOUTME: Collects per-item successes and failures, optionally stopping early after a failure threshold.
package recovery

import "context"

// ItemFailure records one failed item together with the error it produced.
type ItemFailure[I any] struct {
	Item I
	Err  error
}

// ProcessWithPartialRecovery applies processor to each item in order.
// A failing item is recorded in failures and processing continues; a
// succeeding item's result is appended to successes. When failOnCount
// is positive and the failure count reaches it, iteration stops early
// and the remaining items are left unprocessed. Context cancellation
// stops iteration the same way. Relative order is preserved within
// each returned slice. Per-item failures never produce an overall
// error; the caller decides what an empty success list means.
func ProcessWithPartialRecovery[I, O any](
	ctx context.Context,
	items []I,
	processor func(context.Context, I) (O, error),
	failOnCount int,
) (successes []O, failures []ItemFailure[I]) {
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		result, err := processor(ctx, item)
		if err != nil {
			failures = append(failures, ItemFailure[I]{Item: item, Err: err})
			if failOnCount > 0 && len(failures) >= failOnCount {
				break
			}
			continue
		}
		successes = append(successes, result)
	}
	return successes, failures
}
