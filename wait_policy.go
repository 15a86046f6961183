package parfor

import (
	"time"

	"github.com/creasty/defaults"
)

// WaitPolicy describes how WaitForFinish waits once the submitting
// goroutine has no iterations left to run itself.
// Zero values are treated as "use defaults".
type WaitPolicy struct {
	// Spins is how many times the waiter yields before it starts sleeping.
	Spins int `default:"20"`

	// Initial is the first sleep duration after spinning.
	Initial time.Duration `default:"2us"`

	// Max is the cap for the sleep duration.
	Max time.Duration `default:"200us"`
}

// GetDefaultWP returns a pointer to the default wait policy.
// Useful in tests or when constructing options with the same defaults.
func GetDefaultWP() *WaitPolicy {
	var wp WaitPolicy
	defaults.MustSet(&wp)
	return &wp
}
