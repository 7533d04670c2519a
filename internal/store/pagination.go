package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/safar/go-shop-settlement/internal/apperr"
	"github.com/safar/go-shop-settlement/internal/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

var ErrInvalidCursor = fmt.Errorf("cursor: %w", apperr.ErrInvalidArgument)

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor turns an opaque cursor back into its position. The empty
// cursor points past the newest order.
func DecodeCursor(encoded string) (OrderCursor, error) {
	var cursor OrderCursor
	if encoded == "" {
		return OrderCursor{
			CreatedAt: time.Now().Add(time.Hour),
			ID:        int64(1<<63 - 1),
		}, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return cursor, ErrInvalidCursor
	}

	if err := json.Unmarshal(data, &cursor); err != nil {
		return cursor, ErrInvalidCursor
	}
	return cursor, nil
}

// ClampPageSize maps non-positive sizes to the default and caps the rest.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
