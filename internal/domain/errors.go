package domain

import "errors"

// Domain errors
var (
	ErrTeamNotFound     = errors.New("team not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrEventNotFound    = errors.New("event not found")
	ErrNotFound         = errors.New("item not found")
	ErrTeamExists       = errors.New("team already exists")
	ErrNoActiveTeam     = errors.New("no active team")
	ErrStaleResponse    = errors.New("response belongs to an inactive team")
	ErrMalformedEvent   = errors.New("malformed change event")
	ErrTableMissing     = errors.New("remote table not provisioned")
	ErrSessionExpired   = errors.New("session expired")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrUnsupportedRow   = errors.New("unsupported row type")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrPlayerNotFound) ||
		errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSnapshotNotFound)
}

// IsTransient reports whether an error is a remote failure that should be
// logged and abandoned rather than surfaced as a data problem.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTeamExists) &&
		!errors.Is(err, ErrTableMissing) &&
		!errors.Is(err, ErrSessionExpired) &&
		!errors.Is(err, ErrMalformedEvent)
}
