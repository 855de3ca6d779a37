package health

import "context"

// ReadinessCheck is implemented by stores and collaborators that can tell
// whether their backing system is reachable.
type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
