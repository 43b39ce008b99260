package store

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

// DefaultUpdateAttempts bounds the re-fetch/reapply loop in UpdateWithRetry.
const DefaultUpdateAttempts = 5

// UpdateWithRetry applies a read-modify-write patch to a document. It fetches
// the latest revision, applies mutate, and writes back. A revision conflict
// (another writer raced the patch) re-fetches and reapplies the same logical
// mutation; any other error aborts immediately.
//
// Every mutation path that can be raced by a sibling writer must go through
// this helper rather than calling Put directly.
func UpdateWithRetry[T any](ctx context.Context, c Collection[T], id string, mutate func(*T) error) (*Doc[T], error) {
	var out *Doc[T]

	err := retry.Do(
		func() error {
			doc, err := c.Get(ctx, id)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if err := mutate(&doc.Data); err != nil {
				return retry.Unrecoverable(err)
			}
			updated, err := c.Put(ctx, *doc)
			if err != nil {
				if errors.Is(err, ErrConflict) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			out = updated
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(DefaultUpdateAttempts),
		retry.Delay(10*time.Millisecond),
		retry.MaxDelay(250*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
