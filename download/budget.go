package download

import "sync"

// errorBudget counts the failed segments of a session, all tracks included
type errorBudget struct {
	mu     sync.Mutex
	max    int
	failed int
	last   error
}

func newErrorBudget(max int) *errorBudget {
	return &errorBudget{max: max}
}

// fail records a failed segment. It returns a *BudgetExhaustedError once more
// than max segments have failed.
func (b *errorBudget) fail(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed++
	b.last = err
	if b.failed > b.max {
		return &BudgetExhaustedError{Failed: b.failed, Last: err}
	}
	return nil
}

func (b *errorBudget) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failed
}
