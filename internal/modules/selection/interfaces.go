package selection

import "context"

// Strategy is an online portfolio selection rule. The driver calls Configure
// once with the asset count, then Optimize once per period with the
// relative-return rows observed so far.
type Strategy interface {
	Name() string
	Configure(assets int) error
	Optimize(ctx context.Context, window [][]float64) ([]float64, error)
}
