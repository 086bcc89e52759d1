package run

import "fmt"

var validOutcomes = map[Outcome]struct{}{
	OutcomeSuccess:             {},
	OutcomeVerificationFailure: {},
	OutcomeScopeDisagreement:   {},
	OutcomeTimeout:             {},
	OutcomeError:               {},
}

// Validate checks the invariant fields of a Run before launch.
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run: id is required")
	}
	if r.Task == "" {
		return fmt.Errorf("run: task is required")
	}
	switch r.BackendKind {
	case BackendLocal, BackendRemote:
	default:
		return fmt.Errorf("run: invalid backend kind %q", r.BackendKind)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("run: timeout must be > 0")
	}
	if r.Outcome != "" {
		if _, ok := validOutcomes[r.Outcome]; !ok {
			return fmt.Errorf("run: invalid outcome %q", r.Outcome)
		}
	}
	return nil
}

// Terminal reports whether o is a valid terminal outcome.
func (o Outcome) Terminal() bool {
	_, ok := validOutcomes[o]
	return ok
}
