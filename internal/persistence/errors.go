package persistence

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrSelfLink is returned when a relationship would join a celebrity to itself.
	ErrSelfLink = errors.New("celebrity cannot be linked to itself")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown database driver")

	errLockHeld = errors.New("job lock held")
)

// wrapNotFound maps gorm's not-found error onto ErrNotFound.
func wrapNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
