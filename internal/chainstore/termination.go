package chainstore

// DefaultThreshold is the duplicate streak that ends a run when none is configured.
const DefaultThreshold = 100

// Controller tracks the process-wide duplicate streak. It is not synchronized
// on its own: Store calls it from inside the same critical section that
// mutates the chain table, so the streak always matches the order in which
// observations were applied.
type Controller struct {
	threshold int
	streak    int
}

// NewController returns a controller that stops after threshold consecutive duplicates.
func NewController(threshold int) *Controller {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Controller{threshold: threshold}
}

// Register records one observation outcome and reports whether the run should stop.
func (c *Controller) Register(isNew bool) bool {
	if isNew {
		c.streak = 0
		return false
	}
	c.streak++
	return c.streak >= c.threshold
}

// Streak returns the current number of consecutive duplicates.
func (c *Controller) Streak() int {
	return c.streak
}

// Threshold returns the configured stop threshold.
func (c *Controller) Threshold() int {
	return c.threshold
}
