package domain

import (
	"errors"
	"fmt"
)

var (
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	ErrInvalidInput          = errors.New("invalid input")
	ErrJobNotFound           = errors.New("search job not found")
	ErrTemporary             = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
