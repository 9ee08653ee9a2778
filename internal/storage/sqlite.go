// Package storage persists monitored selections and notification dedup marks
// in a single SQLite file.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lineupwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite store and applies migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AddPlayer(ctx context.Context, userID int64, slug string, teamID, competitionID, playerID int) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO selection_players(user_id, federation_slug, team_id, competition_id, player_id)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id, federation_slug, team_id, player_id) DO UPDATE SET competition_id=excluded.competition_id`,
		userID, slug, teamID, competitionID, playerID,
	)
	return err
}

func (s *sqliteStore) RemovePlayer(ctx context.Context, userID int64, slug string, teamID, playerID int) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM selection_players WHERE user_id=? AND federation_slug=? AND team_id=? AND player_id=?`,
		userID, slug, teamID, playerID,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *sqliteStore) RemoveTeam(ctx context.Context, userID int64, slug string, teamID int) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM selection_players WHERE user_id=? AND federation_slug=? AND team_id=?`,
		userID, slug, teamID,
	)
	return err
}

func (s *sqliteStore) RemoveFederation(ctx context.Context, userID int64, slug string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM selection_players WHERE user_id=? AND federation_slug=?`,
		userID, slug,
	)
	return err
}

const selectionColumns = `user_id, federation_slug, team_id, competition_id, player_id`

func (s *sqliteStore) SelectionsByFederation(ctx context.Context, slug string) ([]MonitoredSelection, error) {
	return s.querySelections(ctx,
		`SELECT `+selectionColumns+` FROM selection_players
		 WHERE federation_slug=? ORDER BY user_id, team_id, player_id`, slug)
}

func (s *sqliteStore) SelectionsByFederationTeam(ctx context.Context, slug string, teamID int) ([]MonitoredSelection, error) {
	return s.querySelections(ctx,
		`SELECT `+selectionColumns+` FROM selection_players
		 WHERE federation_slug=? AND team_id=? ORDER BY user_id, team_id, player_id`, slug, teamID)
}

func (s *sqliteStore) SelectionsForUser(ctx context.Context, userID int64) ([]MonitoredSelection, error) {
	return s.querySelections(ctx,
		`SELECT `+selectionColumns+` FROM selection_players
		 WHERE user_id=? ORDER BY federation_slug, team_id, player_id`, userID)
}

// querySelections groups flat player rows into per-(user, federation, team)
// selections. Rows arrive ordered, so grouping is a single pass.
func (s *sqliteStore) querySelections(ctx context.Context, query string, args ...any) ([]MonitoredSelection, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MonitoredSelection
	for rows.Next() {
		var (
			userID         int64
			slug           string
			teamID, compID int
			playerID       int
		)
		if err := rows.Scan(&userID, &slug, &teamID, &compID, &playerID); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.UserID == userID && last.FederationSlug == slug && last.TeamID == teamID {
				last.PlayerIDs = append(last.PlayerIDs, playerID)
				continue
			}
		}
		out = append(out, MonitoredSelection{
			UserID:         userID,
			FederationSlug: slug,
			TeamID:         teamID,
			CompetitionID:  compID,
			PlayerIDs:      []int{playerID},
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, created_at) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET created_at=excluded.created_at`,
		key, at.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) HasDedup(ctx context.Context, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	if key == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM dedup WHERE key = ?`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) PruneDedup(ctx context.Context, olderThan time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE created_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
