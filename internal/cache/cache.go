package cache

import (
	"context"
	"errors"

	"github.com/safar/go-shop-settlement/internal/models"
)

// CartCache stores rendered cart views per owner. Writers to a cart delete
// the entry; readers repopulate it.
//
// A reader takes a Stamp before loading the cart and hands it to Set. Delete
// advances the stamp, so a view loaded before an invalidation is dropped
// instead of written over it.
type CartCache interface {
	Get(ctx context.Context, owner models.CartOwner) (*models.CartView, error)
	Stamp(ctx context.Context, owner models.CartOwner) (int64, error)
	Set(ctx context.Context, owner models.CartOwner, view *models.CartView, stamp int64) error
	Delete(ctx context.Context, owners ...models.CartOwner) error
}

var ErrCacheMiss = errors.New("cache miss")
