package rule

import (
	"context"
	"runtime"

	"github.com/minvws/nl-covid19-coronacheck-dcc/certlogic"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of evaluating a single rule of a set
type Outcome struct {
	Rule   *Rule
	Value  certlogic.Value
	Passed bool

	// Err is set when the rule could not be evaluated, Passed is false in that case
	Err error
}

// EvaluateAll evaluates the rules concurrently against the same payload. Outcomes are in
// the order of the rules. A failing rule does not stop the others; only cancellation of
// ctx is returned as an error.
func EvaluateAll(ctx context.Context, rules []*Rule, payload Payload, overrides map[string]interface{}) ([]*Outcome, error) {
	outcomes := make([]*Outcome, len(rules))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for i, r := range rules {
		i, r := i, r
		group.Go(func() error {
			err := groupCtx.Err()
			if err != nil {
				return err
			}

			value, err := r.Evaluate(payload, overrides)
			outcomes[i] = &Outcome{
				Rule:   r,
				Value:  value,
				Passed: err == nil && value.Truthy(),
				Err:    err,
			}

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	return outcomes, nil
}

// AllPassed reports whether every outcome passed
func AllPassed(outcomes []*Outcome) bool {
	for _, outcome := range outcomes {
		if !outcome.Passed {
			return false
		}
	}

	return true
}
