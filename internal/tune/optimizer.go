// Package tune searches work-group shapes that minimise device time.
package tune

// Optimizer minimises an objective over a box.
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds (the same for every dimension)
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper float64, dim int) ([]float64, float64, error)
}
