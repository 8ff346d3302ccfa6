package promptz

import (
	"context"
)

// Service defines the main interface of the promptz content backend.
//
// Every mutation runs in two stages: the resolver performs the conditional
// store write, then the staged event is handed to the publisher. Callers
// always get the store outcome; publish failures are only logged.
type Service interface {
	// Mutations
	Save(ctx context.Context, kind Kind, caller string, req SaveRequest) (*Entity, error)
	Delete(ctx context.Context, kind Kind, caller, id string) (*Entity, error)
	Copy(ctx context.Context, kind Kind, id string) (*Entity, error)
	Download(ctx context.Context, kind Kind, id string) (*Entity, error)

	// Read path
	Get(ctx context.Context, kind Kind, id string) (*Entity, error)
}
