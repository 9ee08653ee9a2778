package notify

import (
	"testing"

	"lineupwatch/internal/detect"
	"lineupwatch/internal/domain"
)

func testEvent(evType detect.EventType) *detect.Event {
	return &detect.Event{
		Type:           evType,
		FederationSlug: "lnv",
		UserID:         555,
		MatchID:        42,
		Missing: []domain.Player{
			{ID: 3, FullName: "C"},
			{ID: 1, FullName: "A"},
		},
		Benched: []domain.Player{
			{ID: 9, FullName: "B"},
		},
	}
}

func TestEventKeyStable(t *testing.T) {
	a := EventKey(testEvent(detect.EventLineup), KeyPolicy{})
	b := EventKey(testEvent(detect.EventLineup), KeyPolicy{})
	if a != b {
		t.Fatalf("same event hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 (64 chars), got %d", len(a))
	}
}

func TestEventKeyDiscriminators(t *testing.T) {
	base := EventKey(testEvent(detect.EventLineup), KeyPolicy{})

	other := testEvent(detect.EventLineup)
	other.MatchID = 43
	if EventKey(other, KeyPolicy{}) == base {
		t.Fatal("different match must hash differently")
	}

	other = testEvent(detect.EventLineup)
	other.UserID = 556
	if EventKey(other, KeyPolicy{}) == base {
		t.Fatal("different user must hash differently")
	}

	if EventKey(testEvent(detect.EventSubstitution), KeyPolicy{}) == base {
		t.Fatal("different event type must hash differently")
	}

	other = testEvent(detect.EventLineup)
	other.FederationSlug = "tvf"
	if EventKey(other, KeyPolicy{}) == base {
		t.Fatal("different federation must hash differently")
	}
}

func TestEventKeyIgnoresPlayersByDefault(t *testing.T) {
	a := testEvent(detect.EventLineup)
	b := testEvent(detect.EventLineup)
	b.Missing = append(b.Missing, domain.Player{ID: 99})

	if EventKey(a, KeyPolicy{}) != EventKey(b, KeyPolicy{}) {
		t.Fatal("default policy must ignore player sets")
	}
	if EventKey(a, KeyPolicy{IncludePlayers: true}) == EventKey(b, KeyPolicy{IncludePlayers: true}) {
		t.Fatal("include-players policy must see the changed set")
	}
}

func TestEventKeyPlayerOrderIndependent(t *testing.T) {
	a := testEvent(detect.EventLineup)
	b := testEvent(detect.EventLineup)
	b.Missing[0], b.Missing[1] = b.Missing[1], b.Missing[0]

	pol := KeyPolicy{IncludePlayers: true}
	if EventKey(a, pol) != EventKey(b, pol) {
		t.Fatal("player order must not change the key")
	}
}
