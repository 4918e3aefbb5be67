package transform

// Config bounds the transformations that can grow the graph.
type Config struct {
	// MaximumDesiredSize is the node budget a fully unrolled loop may add
	// on top of the function it lives in (times two, matching the slack
	// the unroller is willing to spend before bailing out).
	MaximumDesiredSize int

	// FullUnrollMaxIterations caps how many iterations full unrolling
	// peels before giving up on proving the trip count.
	FullUnrollMaxIterations int
}

// DefaultConfig returns the default budgets.
func DefaultConfig() Config {
	return Config{
		MaximumDesiredSize:      20000,
		FullUnrollMaxIterations: 600,
	}
}
