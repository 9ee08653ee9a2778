// Package domain holds the normalized entities produced by the upstream
// source clients. Matches are transient: they are re-derived every poll and
// never persisted as a source of truth.
package domain

import "time"

type MatchStatus int

const (
	MatchScheduled MatchStatus = 0
	MatchLive      MatchStatus = 1
	MatchFinished  MatchStatus = 2
)

func (s MatchStatus) String() string {
	switch s {
	case MatchScheduled:
		return "scheduled"
	case MatchLive:
		return "live"
	case MatchFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Position is a player's role mapped from upstream free text through a fixed
// vocabulary. Unrecognized text maps to the empty Position.
type Position string

const (
	PositionNone          Position = ""
	PositionMiddleBlocker Position = "MB"
	PositionOpposite      Position = "O"
	PositionWingSpiker    Position = "WS"
	PositionSetter        Position = "S"
	PositionLibero        Position = "L"
	PositionUniversal     Position = "U"
)

type Competition struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
}

// PlayerStatistic is a per-competition aggregate for one player.
type PlayerStatistic struct {
	ID              int `json:"id"`
	TotalPoints     int `json:"totalPoints"`
	PlayedSetsCount int `json:"playedSetsCount"`
	TeamID          int `json:"teamId"`
	CompetitionID   int `json:"competitionId"`
}

// Rating is points per played set, 0 when no sets were played.
func (s PlayerStatistic) Rating() float64 {
	if s.PlayedSetsCount <= 0 {
		return 0
	}
	return float64(s.TotalPoints) / float64(s.PlayedSetsCount)
}

// Player is a roster entry. IsActive is only meaningful in the context of a
// specific match lineup: nil means "unknown", not "benched".
type Player struct {
	ID        int              `json:"id"`
	Number    int              `json:"number"`
	FullName  string           `json:"fullName"`
	Position  Position         `json:"position,omitempty"`
	IsActive  *bool            `json:"isActive,omitempty"`
	Statistic *PlayerStatistic `json:"statistic,omitempty"`
}

type Team struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	CompetitionID int      `json:"competitionId,omitempty"`
	Players       []Player `json:"players,omitempty"`
}

type Match struct {
	ID               int         `json:"id"`
	Status           MatchStatus `json:"status"`
	Home             Team        `json:"home"`
	Guest            Team        `json:"guest"`
	Competition      Competition `json:"competition"`
	MatchDateTimeUTC time.Time   `json:"matchDateTimeUtc"`
}
