package notify

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"lineupwatch/internal/detect"
)

// KeyPolicy controls which fields enter the event identity. Player sets are
// excluded by default: "who exactly is out" can wobble between polls and
// every wobble would read as a brand-new event.
type KeyPolicy struct {
	IncludePlayers bool
}

// eventIdentity is the canonical dedup identity. Field order is fixed by the
// struct and player ids are sorted, so equal events always hash equal.
type eventIdentity struct {
	MatchID    int    `json:"matchId"`
	Federation string `json:"federation"`
	UserID     int64  `json:"userId"`
	Type       string `json:"type"`
	Missing    []int  `json:"missing,omitempty"`
	Benched    []int  `json:"benched,omitempty"`
}

// EventKey returns the hex SHA-256 dedup key for one event.
func EventKey(ev *detect.Event, pol KeyPolicy) string {
	id := eventIdentity{
		MatchID:    ev.MatchID,
		Federation: ev.FederationSlug,
		UserID:     ev.UserID,
		Type:       string(ev.Type),
	}
	if pol.IncludePlayers {
		for _, p := range ev.Missing {
			id.Missing = append(id.Missing, p.ID)
		}
		for _, p := range ev.Benched {
			id.Benched = append(id.Benched, p.ID)
		}
		sort.Ints(id.Missing)
		sort.Ints(id.Benched)
	}

	buf, _ := json.Marshal(id)
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
