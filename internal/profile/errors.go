package profile

import (
	"codeberg.org/mutker/ecctl/internal/errors"
)

const (
	ErrDuplicateName      = errors.ErrDuplicateName
	ErrCannotDeleteActive = errors.ErrCannotDeleteActive
	ErrProfileNotFound    = errors.ErrProfileNotFound
	ErrConfigCorrupt      = errors.ErrConfigCorrupt
	ErrInvalidArgument    = errors.ErrInvalidArgument
	ErrPersist            = errors.ErrorCode("profile_persist_failed")
)
