package offset

import (
	"context"

	"github.com/dirtail/dirtail/internal/registry"
)

// Store persists per-file read offsets so a restart resumes where the
// previous run stopped instead of replaying whole files.
type Store interface {
	// Get retrieves the stored offset for path. The stored identity
	// must match id: an offset saved for a rotated-away file is a
	// miss, not a hit.
	Get(ctx context.Context, path string, id registry.Identity) (int64, bool, error)

	// Set stores the offset for path together with the identity it
	// belongs to.
	Set(ctx context.Context, path string, id registry.Identity, offset int64) error

	// Delete removes the stored offset for path.
	Delete(ctx context.Context, path string) error

	// Close closes the store.
	Close() error
}
