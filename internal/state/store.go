// Package state persists small client-side records (UI preferences,
// identity) across runs. Trade history deliberately stays in memory
// only.
package state

import "context"

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
