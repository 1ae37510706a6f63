package ports

import (
	"context"

	"gobandits/domain/arms"
)

// ScriptRunner executes one script and classifies how it ended.
type ScriptRunner interface {
	Run(ctx context.Context, script arms.Script) (arms.Outcome, error)
}
