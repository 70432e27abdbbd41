// Package credential persists the raw bearer token of the current login in a
// single named slot. It performs no validation.
package credential

import (
	"context"
	"errors"
)

// DefaultSlot names the slot used when none is configured.
const DefaultSlot = "token"

// ErrEmptyToken is returned by Save when asked to persist nothing.
var ErrEmptyToken = errors.New("credential: empty token")

// Store is a durable key-value slot holding one token. Read reports ok=false
// when the slot is empty. Clear on an empty slot is not an error.
type Store interface {
	Save(ctx context.Context, token string) error
	Read(ctx context.Context) (token string, ok bool, err error)
	Clear(ctx context.Context) error
}
