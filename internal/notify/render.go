package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"lineupwatch/internal/detect"
	"lineupwatch/internal/domain"
	"lineupwatch/internal/federation"
)

// Render formats one event as a Markdown message. Kickoff is shown in loc
// (nil means UTC). Players within each section are ordered by rating
// descending so the painful absences come first.
func Render(ev *detect.Event, fed federation.Info, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	var b strings.Builder
	switch ev.Type {
	case detect.EventSubstitution:
		b.WriteString("🔄 *Substitution alert*\n\n")
	default:
		b.WriteString("📋 *Lineup announced*\n\n")
	}

	fmt.Fprintf(&b, "%s %s\n", fed.Emoji, fed.Name)
	if name := competitionLabel(ev.Competition); name != "" {
		fmt.Fprintf(&b, "🏆 %s\n", name)
	}
	fmt.Fprintf(&b, "📅 %s\n", ev.Kickoff.In(loc).Format("02.01 15:04"))

	home, guest := ev.Team.Name, ev.Opponent.Name
	if !ev.IsHome {
		home, guest = ev.Opponent.Name, ev.Team.Name
	}
	fmt.Fprintf(&b, "🔴 %s vs 🔵 %s\n", home, guest)

	writeSection(&b, "❌ Missing:", ev.Missing)
	writeSection(&b, "🪑 Benched:", ev.Benched)
	writeSection(&b, "👥 On court:", ev.OnCourt)

	fmt.Fprintf(&b, "\n🔗 [Live score](https://%s-web.dataproject.com/LiveScore_adv.aspx?ID=%d)", fed.Slug, ev.MatchID)
	return b.String()
}

func competitionLabel(c domain.Competition) string {
	if c.FullName != "" {
		return c.FullName
	}
	return c.Name
}

func writeSection(b *strings.Builder, header string, players []domain.Player) {
	if len(players) == 0 {
		return
	}
	sorted := append([]domain.Player(nil), players...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rating(sorted[i]) > rating(sorted[j])
	})

	b.WriteString("\n")
	b.WriteString(header)
	b.WriteString("\n")
	for _, p := range sorted {
		b.WriteString(playerLine(p))
	}
}

func playerLine(p domain.Player) string {
	var b strings.Builder
	name := p.FullName
	if name == "" {
		name = fmt.Sprintf("player %d", p.ID)
	}
	if p.Number > 0 {
		fmt.Fprintf(&b, "№ %d: %s", p.Number, name)
	} else {
		b.WriteString(name)
	}
	if p.Position != domain.PositionNone {
		fmt.Fprintf(&b, " (%s)", p.Position)
	}
	b.WriteString("\n")
	if s := p.Statistic; s != nil && s.PlayedSetsCount > 0 {
		fmt.Fprintf(&b, "Rating: %.2f (%d pts / %d sets)\n", s.Rating(), s.TotalPoints, s.PlayedSetsCount)
	}
	return b.String()
}

func rating(p domain.Player) float64 {
	if p.Statistic == nil {
		return 0
	}
	return p.Statistic.Rating()
}
