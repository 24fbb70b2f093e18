package route

import (
	"context"

	"trackmybus/internal/types"
)

// Directory looks up published routes. Implementations are read-only from the
// tracking engine's point of view.
type Directory interface {
	Get(ctx context.Context, id types.ID) (Route, error)
}
