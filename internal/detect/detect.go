// Package detect is the pure lineup evaluation engine. It takes a freshly
// acquired match and one monitored selection and decides whether the watched
// players warrant an alert. No I/O, no clocks of its own: callers inject now.
package detect

import (
	"time"

	"lineupwatch/internal/domain"
	"lineupwatch/internal/storage"
)

// EventType tags what kind of alert an Event is. The two kinds are produced
// independently: one evaluation can yield both.
type EventType string

const (
	// EventLineup reports watched players absent from the match roster.
	EventLineup EventType = "lineup"
	// EventSubstitution reports watched players on the roster but not on
	// court.
	EventSubstitution EventType = "substitution"
)

// Window bounds match relevance around kickoff. A match is evaluated from
// Before ahead of kickoff until After past it.
type Window struct {
	Before time.Duration
	After  time.Duration
}

func (w Window) withDefaults() Window {
	if w.Before <= 0 {
		w.Before = time.Hour
	}
	if w.After <= 0 {
		w.After = 4 * time.Hour
	}
	return w
}

// Contains reports whether now falls inside the window around kickoff.
func (w Window) Contains(kickoff, now time.Time) bool {
	w = w.withDefaults()
	return !now.Before(kickoff.Add(-w.Before)) && !now.After(kickoff.Add(w.After))
}

// Event is one alert-worthy finding for one user and one match side. The
// Type tag and classification never change after creation; callers may still
// attach statistics to the player entries before rendering.
type Event struct {
	Type           EventType
	FederationSlug string
	UserID         int64
	MatchID        int
	Competition    domain.Competition
	Kickoff        time.Time
	Team           domain.Team
	Opponent       domain.Team
	IsHome         bool

	// Missing players are watched, on the season roster, and absent from the
	// match roster (lineup events only).
	Missing []domain.Player
	// Benched players are on the match roster with known activity and not on
	// court (substitution events only).
	Benched []domain.Player
	// OnCourt players are message context, never a trigger.
	OnCourt []domain.Player
}

// Input is one evaluation unit: a match, one user's selection for a team in
// it, and that team's season roster. A nil season roster means the roster
// could not be fetched; lineup classification is skipped rather than guessed,
// so a transient upstream failure never fabricates an absence. An empty
// non-nil roster is a real answer and classifies normally.
type Input struct {
	Match        domain.Match
	Selection    storage.MonitoredSelection
	SeasonRoster []domain.Player
}

// Evaluate applies one selection to one match and returns zero, one or two
// events: a lineup event when watched season-roster players are off the match
// roster, and a substitution event when watched players are on the roster but
// not on court.
//
// Activity markers are all-or-nothing per match: when they are absent the
// lineup source did not return a complete answer, and only roster absence can
// trigger. Benched is never inferred from unknown activity.
func Evaluate(slug string, in Input, now time.Time, win Window) []*Event {
	m, sel := in.Match, in.Selection
	if m.Status == domain.MatchFinished {
		return nil
	}
	if !win.Contains(m.MatchDateTimeUTC, now) {
		return nil
	}

	var team, opponent domain.Team
	var isHome bool
	switch sel.TeamID {
	case m.Home.ID:
		team, opponent, isHome = m.Home, m.Guest, true
	case m.Guest.ID:
		team, opponent, isHome = m.Guest, m.Home, false
	default:
		return nil
	}

	inMatch := make(map[int]domain.Player, len(team.Players))
	for _, p := range team.Players {
		inMatch[p.ID] = p
	}
	inSeason := make(map[int]domain.Player, len(in.SeasonRoster))
	for _, p := range in.SeasonRoster {
		inSeason[p.ID] = p
	}

	var missing, benched, onCourt []domain.Player
	for _, id := range sel.PlayerIDs {
		p, ok := inMatch[id]
		switch {
		case !ok:
			if in.SeasonRoster == nil {
				// Season membership unknown; never report an absence on a
				// failed roster fetch.
				continue
			}
			if sp, seasonMember := inSeason[id]; seasonMember {
				// A watched player gone from the season roster entirely
				// (transfer, release) is not a lineup finding.
				missing = append(missing, sp)
			}
		case p.IsActive == nil:
			// Activity unknown; neither benched nor on court.
		case *p.IsActive:
			onCourt = append(onCourt, p)
		default:
			benched = append(benched, p)
		}
	}

	base := Event{
		FederationSlug: slug,
		UserID:         sel.UserID,
		MatchID:        m.ID,
		Competition:    m.Competition,
		Kickoff:        m.MatchDateTimeUTC,
		Team:           team,
		Opponent:       opponent,
		IsHome:         isHome,
		OnCourt:        onCourt,
	}

	var out []*Event
	if len(missing) > 0 {
		ev := base
		ev.Type = EventLineup
		ev.Missing = missing
		out = append(out, &ev)
	}
	if len(benched) > 0 {
		ev := base
		ev.Type = EventSubstitution
		ev.Benched = benched
		out = append(out, &ev)
	}
	return out
}

// EvaluateAll runs every input and collects the resulting events in input
// order.
func EvaluateAll(slug string, inputs []Input, now time.Time, win Window) []*Event {
	var out []*Event
	for _, in := range inputs {
		out = append(out, Evaluate(slug, in, now, win)...)
	}
	return out
}
