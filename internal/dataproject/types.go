package dataproject

import (
	"context"
	"time"

	"lineupwatch/internal/domain"
	"lineupwatch/internal/federation"
)

// Fetcher is the per-federation acquisition contract. The raw HTTP client
// implements it, and CachedFetcher decorates it with TTL-keyed caching, so
// callers never care which one they hold.
//
// Every list-producing method returns a possibly-empty slice on partial or
// parse failure; only total unreachability returns an error.
type Fetcher interface {
	Federation() federation.Info

	// Scoreboard scrapes the live-scoreboard page for candidate matches:
	// match ids, competition refs and kickoff time-of-day (upstream sends
	// time only, interpreted as today, UTC).
	Scoreboard(ctx context.Context) ([]ScoreboardMatch, error)

	// MatchStates batch-queries the polling endpoint for the given match ids.
	MatchStates(ctx context.Context, matchIDs []int) ([]MatchState, error)

	// MatchRoster returns the roster-in-match for one side, merged with
	// season-roster details (position, shirt number).
	MatchRoster(ctx context.Context, matchID, teamID, competitionID int) ([]domain.Player, error)

	// LiveLineup returns the current on-court entries for a match.
	LiveLineup(ctx context.Context, matchID int) ([]LineupEntry, error)

	TeamRoster(ctx context.Context, teamID, competitionID int) ([]domain.Player, error)
	Teams(ctx context.Context, competitionID int) ([]domain.Team, error)
	AllTeams(ctx context.Context) ([]domain.Team, error)

	Competitions(ctx context.Context) ([]domain.Competition, error)
	CompetitionByID(ctx context.Context, id int) (*domain.Competition, error)

	CompetitionStatistics(ctx context.Context, competitionID int) ([]domain.PlayerStatistic, error)
	PlayerStatistic(ctx context.Context, playerID, teamID, competitionID int) (*domain.PlayerStatistic, error)
}

// ScoreboardMatch is one candidate row scraped from the scoreboard page.
type ScoreboardMatch struct {
	ID            int       `json:"id"`
	CompetitionID int       `json:"competitionId"`
	KickoffUTC    time.Time `json:"kickoffUtc"`
}

// MatchState is the polling endpoint's view of one match.
type MatchState struct {
	MatchID   int                `json:"matchId"`
	Status    domain.MatchStatus `json:"status"`
	HomeID    int                `json:"homeId"`
	HomeName  string             `json:"homeName"`
	GuestID   int                `json:"guestId"`
	GuestName string             `json:"guestName"`
}

// LineupEntry is one on-court slot from the live-lineup query.
type LineupEntry struct {
	PlayerID int  `json:"playerId"`
	Number   int  `json:"number"`
	IsHome   bool `json:"isHome"`
}

// Config tunes the HTTP client. Zero values pick the production upstream
// and conservative timeouts.
type Config struct {
	// WebBaseTemplate receives the federation slug, e.g.
	// "https://%s-web.dataproject.com".
	WebBaseTemplate string
	// PollBase is the SignalR service root.
	PollBase string

	CallTimeout time.Duration
	// RatePerSec caps upstream calls per federation.
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.WebBaseTemplate == "" {
		c.WebBaseTemplate = "https://%s-web.dataproject.com"
	}
	if c.PollBase == "" {
		c.PollBase = "https://dataprojectservicesignalr.azurewebsites.net"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 8
	}
	return c
}
