package dataproject

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lineupwatch/internal/domain"
	"lineupwatch/pkg/logx"
)

// postWebMethod calls an ASP.NET page method on the federation web host and
// unwraps the {"d": ...} envelope into dst.
func (c *Client) postWebMethod(ctx context.Context, page string, payload any, dst any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webURL(page), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: POST %s: http %d", ErrTransient, page, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	var envelope struct {
		D json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrTransient, page, err)
	}
	if err := json.Unmarshal(envelope.D, dst); err != nil {
		return fmt.Errorf("%w: POST %s: %v", ErrTransient, page, err)
	}
	return nil
}

type statsFilter struct {
	StartIndex         int    `json:"startIndex"`
	MaximumRows        int    `json:"maximumRows"`
	SortExpressions    string `json:"sortExpressions"`
	FilterExpressions  []any  `json:"filterExpressions"`
	CompID             int    `json:"compID"`
	PhaseID            int    `json:"phaseID"`
	PlayerSearchByName string `json:"playerSearchByName"`
}

// statRow mirrors the upstream all-players statistics grid.
type statRow struct {
	PlayerID    int     `json:"PlayerID"`
	TotalPoints float64 `json:"PointsTot_ForAllPlayerStats"`
	PlayedSets  int     `json:"PlayedSets"`
	TeamID      int     `json:"TeamID"`
}

// CompetitionStatistics fetches the full per-player statistics grid for one
// competition, sizing the page from a preceding count call.
func (c *Client) CompetitionStatistics(ctx context.Context, competitionID int) ([]domain.PlayerStatistic, error) {
	if !c.allowsCompetition(competitionID) {
		return nil, fmt.Errorf("%w: competition %d not configured for %s", ErrConfiguration, competitionID, c.fed.Slug)
	}

	filter := statsFilter{CompID: competitionID, FilterExpressions: []any{}}

	var count int
	if err := c.postWebMethod(ctx, "/Statistics_AllPlayers.aspx/GetCount", filter, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	filter.MaximumRows = count
	var rows []statRow
	if err := c.postWebMethod(ctx, "/Statistics_AllPlayers.aspx/GetData", filter, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.PlayerStatistic, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PlayerStatistic{
			ID:              r.PlayerID,
			TotalPoints:     int(r.TotalPoints),
			PlayedSetsCount: r.PlayedSets,
			TeamID:          r.TeamID,
			CompetitionID:   competitionID,
		})
	}
	return out, nil
}

// PlayerStatistic resolves one player's line from the competition grid.
// A player can appear under several teams after a transfer, so the team-scoped
// row wins; otherwise whichever row has the most played sets. Nil when the
// player has no statistics at all.
func (c *Client) PlayerStatistic(ctx context.Context, playerID, teamID, competitionID int) (*domain.PlayerStatistic, error) {
	all, err := c.CompetitionStatistics(ctx, competitionID)
	if err != nil {
		return nil, err
	}

	best := selectStatistic(all, playerID, teamID)
	if best == nil {
		c.log.Debug("no statistics for player", logx.Int("player_id", playerID), logx.Int("competition_id", competitionID))
	}
	return best, nil
}

// selectStatistic picks a player's row from a competition grid: the
// team-scoped row wins, otherwise the row with the most played sets.
func selectStatistic(all []domain.PlayerStatistic, playerID, teamID int) *domain.PlayerStatistic {
	var best *domain.PlayerStatistic
	for i := range all {
		s := all[i]
		if s.ID != playerID {
			continue
		}
		if s.TeamID == teamID {
			return &s
		}
		if best == nil || s.PlayedSetsCount > best.PlayedSetsCount {
			best = &s
		}
	}
	return best
}
