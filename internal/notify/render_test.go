package notify

import (
	"strings"
	"testing"
	"time"

	"lineupwatch/internal/detect"
	"lineupwatch/internal/domain"
	"lineupwatch/internal/federation"
)

func renderEvent() *detect.Event {
	return &detect.Event{
		Type:           detect.EventLineup,
		FederationSlug: "lnv",
		UserID:         555,
		MatchID:        42,
		Competition:    domain.Competition{ID: 7, Name: "Ligue A", FullName: "Ligue A Masculine"},
		Kickoff:        time.Date(2026, 2, 14, 20, 0, 0, 0, time.UTC),
		IsHome:         true,
		Team:           domain.Team{ID: 100, Name: "Paris"},
		Opponent:       domain.Team{ID: 200, Name: "Lyon"},
		Missing: []domain.Player{
			{ID: 1, Number: 5, FullName: "Low Rated", Position: domain.PositionSetter,
				Statistic: &domain.PlayerStatistic{TotalPoints: 10, PlayedSetsCount: 10}},
			{ID: 2, Number: 9, FullName: "High Rated", Position: domain.PositionOpposite,
				Statistic: &domain.PlayerStatistic{TotalPoints: 120, PlayedSetsCount: 24}},
		},
	}
}

func TestRenderContents(t *testing.T) {
	fed := federation.Info{Slug: "lnv", Name: "France", Emoji: "🇫🇷"}
	msg := Render(renderEvent(), fed, nil)

	for _, want := range []string{
		"📋 *Lineup announced*",
		"🇫🇷 France",
		"🏆 Ligue A Masculine",
		"📅 14.02 20:00",
		"🔴 Paris vs 🔵 Lyon",
		"❌ Missing:",
		"№ 9: High Rated (O)",
		"Rating: 5.00 (120 pts / 24 sets)",
		"https://lnv-web.dataproject.com/LiveScore_adv.aspx?ID=42",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderSortsByRatingDesc(t *testing.T) {
	fed := federation.Info{Slug: "lnv", Name: "France", Emoji: "🇫🇷"}
	msg := Render(renderEvent(), fed, nil)

	hi := strings.Index(msg, "High Rated")
	lo := strings.Index(msg, "Low Rated")
	if hi < 0 || lo < 0 || hi > lo {
		t.Fatalf("expected higher-rated player first (hi=%d lo=%d):\n%s", hi, lo, msg)
	}
}

func TestRenderDisplayOffset(t *testing.T) {
	fed := federation.Info{Slug: "lnv", Name: "France", Emoji: "🇫🇷"}
	loc := time.FixedZone("display", 3*60*60)
	msg := Render(renderEvent(), fed, loc)
	if !strings.Contains(msg, "📅 14.02 23:00") {
		t.Fatalf("expected kickoff shifted +3h:\n%s", msg)
	}
}

func TestRenderSubstitutionHeaderAndGuestSide(t *testing.T) {
	ev := renderEvent()
	ev.Type = detect.EventSubstitution
	ev.IsHome = false
	ev.Missing = nil
	ev.Benched = []domain.Player{{ID: 3, Number: 7, FullName: "Bench Warmer"}}

	fed := federation.Info{Slug: "lnv", Name: "France", Emoji: "🇫🇷"}
	msg := Render(ev, fed, nil)

	if !strings.Contains(msg, "🔄 *Substitution alert*") {
		t.Fatalf("expected substitution header:\n%s", msg)
	}
	// Watched team is the guest, so the opponent renders as home.
	if !strings.Contains(msg, "🔴 Lyon vs 🔵 Paris") {
		t.Fatalf("expected guest-side ordering:\n%s", msg)
	}
	if !strings.Contains(msg, "🪑 Benched:") {
		t.Fatalf("expected benched section:\n%s", msg)
	}
	if strings.Contains(msg, "❌ Missing:") {
		t.Fatalf("unexpected missing section:\n%s", msg)
	}
}

func TestRenderUnnamedPlayerFallsBackToID(t *testing.T) {
	ev := renderEvent()
	ev.Missing = []domain.Player{{ID: 77}}
	fed := federation.Info{Slug: "lnv", Name: "France", Emoji: "🇫🇷"}
	msg := Render(ev, fed, nil)
	if !strings.Contains(msg, "player 77") {
		t.Fatalf("expected id fallback:\n%s", msg)
	}
}
