package dataproject

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"lineupwatch/internal/domain"
	"lineupwatch/pkg/logx"
)

// Structural markers on the upstream pages. These are brittle by nature;
// every extraction below fails soft per-record.
var (
	reCompetitionID = regexp.MustCompile(`&ID=(\d+)`)
	reTeamID        = regexp.MustCompile(`TeamID=(\d+)`)
)

func (c *Client) document(ctx context.Context, pageURL string, params url.Values, cookies ...*http.Cookie) (*goquery.Document, error) {
	body, err := c.getHTML(ctx, pageURL, params, cookies...)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return doc, nil
}

// Scoreboard scrapes MainLiveScore.aspx. The timezoneoffset cookie pins the
// rendered kickoff times to UTC.
func (c *Client) Scoreboard(ctx context.Context) ([]ScoreboardMatch, error) {
	doc, err := c.document(ctx, c.webURL("/MainLiveScore.aspx"), nil,
		&http.Cookie{Name: "timezoneoffset", Value: "0"})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var out []ScoreboardMatch
	doc.Find("div.match-main-wrapper").Each(func(_ int, sel *goquery.Selection) {
		id, ok := sel.Attr("id")
		if !ok {
			return
		}
		_, rawID, found := strings.Cut(id, "Match_Main_")
		matchID, err := strconv.Atoi(strings.TrimSpace(rawID))
		if !found || err != nil {
			return
		}

		onclick, _ := sel.Find(`div[id^="Content_Main_RLV_MatchList_DIV_MatchListLive_Result"]`).Attr("onclick")
		compMatch := reCompetitionID.FindStringSubmatch(onclick)
		if compMatch == nil {
			c.log.Debug("scoreboard row without competition ref", logx.Int("match_id", matchID))
			return
		}
		competitionID, _ := strconv.Atoi(compMatch[1])

		rawTime := sel.Find(`span[id^="Content_Main_RLV_MatchList_LB_Ora_Today_"]`).Text()
		kickoff, err := parseKickoff(rawTime, now)
		if err != nil {
			c.log.Warn("scoreboard row with malformed kickoff time", logx.Int("match_id", matchID), logx.String("raw", rawTime))
			return
		}

		out = append(out, ScoreboardMatch{ID: matchID, CompetitionID: competitionID, KickoffUTC: kickoff})
	})
	return out, nil
}

// TeamRoster scrapes CompetitionTeamDetails.aspx. The language cookie keeps
// the position vocabulary stable across federations.
func (c *Client) TeamRoster(ctx context.Context, teamID, competitionID int) ([]domain.Player, error) {
	params := url.Values{}
	params.Set("ID", strconv.Itoa(competitionID))
	params.Set("TeamID", strconv.Itoa(teamID))

	doc, err := c.document(ctx, c.webURL("/CompetitionTeamDetails.aspx"), params,
		&http.Cookie{Name: "CompetitionLangCode" + c.fed.Slug, Value: "en-GB"})
	if err != nil {
		return nil, err
	}

	// Non-nil even when no rows parse: callers distinguish a roster that is
	// genuinely empty (or unparseable) from one that could not be fetched.
	players := []domain.Player{}
	doc.Find("#Content_Main_RPL_Roster").
		Find(`div[id^="ctl00_Content_Main_PlayerListView_ctrl"][onclick]`).
		Each(func(_ int, sel *goquery.Selection) {
			onclick, _ := sel.Attr("onclick")
			_, after, _ := strings.Cut(onclick, "PlayerID=")
			rawID, _, _ := strings.Cut(after, "&ID")
			playerID, err := strconv.Atoi(strings.TrimSpace(rawID))
			if err != nil {
				return
			}

			number, err := strconv.Atoi(strings.TrimSpace(sel.Find("div.t-hidden-xs .DIV_PlayerNumber").Text()))
			if err != nil {
				return
			}

			name := strings.TrimSpace(sel.Find(".t-col").Eq(4).Find("p").First().Text())
			if name == "" {
				return
			}

			positionText := strings.TrimSpace(sel.Find("div.t-row div.t-col").Eq(5).Text())
			position, known := parsePosition(positionText)
			if !known {
				c.log.Warn("unknown player position", logx.String("text", positionText), logx.Int("player_id", playerID))
			}

			players = append(players, domain.Player{
				ID:       playerID,
				Number:   number,
				FullName: name,
				Position: position,
			})
		})
	return players, nil
}

// Teams scrapes the team-search page for one competition. competitionID 0
// queries the federation-wide page.
func (c *Client) Teams(ctx context.Context, competitionID int) ([]domain.Team, error) {
	params := url.Values{}
	if competitionID != 0 {
		params.Set("ID", strconv.Itoa(competitionID))
	}
	doc, err := c.document(ctx, c.webURL("/CompetitionTeamSearch.aspx"), params)
	if err != nil {
		return nil, err
	}

	var teams []domain.Team
	doc.Find("div.RadAjaxPanel div.rlvI[onclick]").Each(func(_ int, sel *goquery.Selection) {
		onclick, _ := sel.Attr("onclick")
		m := reTeamID.FindStringSubmatch(onclick)
		if m == nil {
			return
		}
		teamID, _ := strconv.Atoi(m[1])
		name := strings.TrimSpace(sel.Find("h4").Text())
		if teamID == 0 || name == "" {
			return
		}
		teams = append(teams, domain.Team{ID: teamID, Name: name, CompetitionID: competitionID})
	})
	return teams, nil
}

// AllTeams walks every configured competition and de-duplicates by team id.
func (c *Client) AllTeams(ctx context.Context) ([]domain.Team, error) {
	compIDs := c.fed.CompetitionIDs
	if len(compIDs) == 0 {
		compIDs = []int{0}
	}

	seen := make(map[int]bool)
	var all []domain.Team
	for _, compID := range compIDs {
		teams, err := c.Teams(ctx, compID)
		if err != nil {
			c.log.Warn("team search failed for competition", logx.Int("competition_id", compID), logx.Err(err))
			continue
		}
		for _, t := range teams {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			all = append(all, t)
		}
	}
	return all, nil
}

// Competitions scrapes the competition listing (with a structural fallback
// for the alternate page layout) and resolves each allowed id to its detail
// page.
func (c *Client) Competitions(ctx context.Context) ([]domain.Competition, error) {
	doc, err := c.document(ctx, c.webURL("/MainHome.aspx"), nil)
	if err != nil {
		return nil, err
	}

	type ref struct{ id int }
	var refs []ref
	seen := make(map[int]bool)
	add := func(id int) {
		if id != 0 && !seen[id] && c.allowsCompetition(id) {
			seen[id] = true
			refs = append(refs, ref{id: id})
		}
	}

	doc.Find(`li a[id^="C_"]`).Each(func(_ int, sel *goquery.Selection) {
		raw, _ := sel.Attr("id")
		id, err := strconv.Atoi(strings.TrimPrefix(raw, "C_"))
		if err == nil {
			add(id)
		}
	})
	if len(refs) == 0 {
		doc.Find(`input[id^="Content_Main_RP_Competitions_HF_CompetitionID"]`).Each(func(_ int, sel *goquery.Selection) {
			raw, _ := sel.Attr("value")
			id, err := strconv.Atoi(strings.TrimSpace(raw))
			if err == nil {
				add(id)
			}
		})
	}

	var out []domain.Competition
	for _, r := range refs {
		comp, err := c.CompetitionByID(ctx, r.id)
		if err != nil || comp == nil {
			c.log.Warn("competition detail unavailable", logx.Int("competition_id", r.id), logx.Err(err))
			continue
		}
		out = append(out, *comp)
	}
	return out, nil
}

// CompetitionByID scrapes the competition detail page. Ids outside the
// federation's allow-list are a configuration error, never retried.
func (c *Client) CompetitionByID(ctx context.Context, id int) (*domain.Competition, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: competition id 0", ErrConfiguration)
	}
	if !c.allowsCompetition(id) {
		return nil, fmt.Errorf("%w: competition %d not configured for %s", ErrConfiguration, id, c.fed.Slug)
	}

	params := url.Values{}
	params.Set("ID", strconv.Itoa(id))
	doc, err := c.document(ctx, c.webURL("/CompetitionHome.aspx"), params)
	if err != nil {
		return nil, err
	}

	return &domain.Competition{
		ID:       id,
		Name:     strings.TrimSpace(doc.Find("div#LYR_Menu h2").Text()),
		FullName: strings.TrimSpace(doc.Find("div#LYR_CompetitionDescription h2").Text()),
	}, nil
}

func (c *Client) allowsCompetition(id int) bool {
	if len(c.fed.CompetitionIDs) == 0 {
		return true
	}
	for _, allowed := range c.fed.CompetitionIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

// parsePosition maps upstream position text through a fixed vocabulary.
// The second return reports whether the text was recognized ("-" counts as
// recognized-empty).
func parsePosition(text string) (domain.Position, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "-":
		return domain.PositionNone, true
	case "libero":
		return domain.PositionLibero, true
	case "middle-blocker", "middle blocker":
		return domain.PositionMiddleBlocker, true
	case "opposite":
		return domain.PositionOpposite, true
	case "setter":
		return domain.PositionSetter, true
	case "wing-spiker", "wing spiker":
		return domain.PositionWingSpiker, true
	case "universal":
		return domain.PositionUniversal, true
	default:
		return domain.PositionNone, false
	}
}
