package calls

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("calls: not found")

// Repository stores local call snapshots.
//
// Upsert merges the given snapshot into any existing row so partial status callbacks accumulate.
type Repository interface {
	Upsert(ctx context.Context, c Call) (Call, error)
	Get(ctx context.Context, id string) (Call, error)
	List(ctx context.Context, limit int) ([]Call, error)
}
