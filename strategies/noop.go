package strategies

import (
	"context"

	"github.com/rustyeddy/papertrade/execution"
)

// NoopStrategy never trades.
type NoopStrategy struct{}

var _ execution.SignalSource = NoopStrategy{}

func (NoopStrategy) Signals(context.Context, execution.DecisionContext) ([]execution.Signal, error) {
	return nil, nil
}
