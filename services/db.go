package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"chat-server/utils"
)

// defaultDBTimeout bounds a single service operation against the datastore.
const defaultDBTimeout = 5 * time.Second

// newContext builds a context for database operations.
func newContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		timeout = defaultDBTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// notFoundOr turns gorm.ErrRecordNotFound into a NotFound error and anything
// else into a server error.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFound(what + " not found")
	}
	return utils.Internal(err, "load "+what)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
