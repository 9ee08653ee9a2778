package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures the persistence layer. SQLite is the only driver; the
// database file is created on first open.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// MonitoredSelection is one user's watch list for one team: the players they
// want lineup alerts for. A selection with no players does not exist; removal
// of the last player removes the selection.
type MonitoredSelection struct {
	UserID         int64
	FederationSlug string
	TeamID         int
	CompetitionID  int
	PlayerIDs      []int
}

// Store is the persistence API for selections and notification dedup marks.
type Store interface {
	// AddPlayer adds one player to a user's selection for a team, creating
	// the selection as needed. Adding an already-present player is a no-op.
	AddPlayer(ctx context.Context, userID int64, slug string, teamID, competitionID, playerID int) error

	// RemovePlayer drops one player from a selection. The second return
	// reports whether anything was removed.
	RemovePlayer(ctx context.Context, userID int64, slug string, teamID, playerID int) (bool, error)

	// RemoveTeam drops a user's whole selection for one team.
	RemoveTeam(ctx context.Context, userID int64, slug string, teamID int) error

	// RemoveFederation drops all of a user's selections under one federation.
	RemoveFederation(ctx context.Context, userID int64, slug string) error

	SelectionsByFederation(ctx context.Context, slug string) ([]MonitoredSelection, error)
	SelectionsByFederationTeam(ctx context.Context, slug string, teamID int) ([]MonitoredSelection, error)
	SelectionsForUser(ctx context.Context, userID int64) ([]MonitoredSelection, error)

	// PutDedup records that the event behind key was delivered at the given
	// time. Re-recording an existing key refreshes its timestamp.
	PutDedup(ctx context.Context, key string, at time.Time) error
	// HasDedup reports whether key was already delivered.
	HasDedup(ctx context.Context, key string) (bool, error)
	// PruneDedup deletes marks recorded before the cutoff and returns how
	// many were removed.
	PruneDedup(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}
