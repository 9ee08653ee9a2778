package dataproject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lineupwatch/internal/domain"
	"lineupwatch/pkg/logx"
)

const hubName = "signalrlivehubfederations"

// hubRequest is the SignalR "send" envelope.
type hubRequest struct {
	H string `json:"H"`
	M string `json:"M"`
	A []any  `json:"A"`
	I int    `json:"I"`
}

// negotiate obtains a fresh session token from the polling service.
func (c *Client) negotiate(ctx context.Context) (string, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("clientProtocol", "2.1")
	q.Set("connectionData", `[{"name":"`+hubName+`"}]`)
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PollBase+"/signalr/negotiate?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", fmt.Sprintf(c.cfg.WebBaseTemplate, c.fed.Slug))

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: negotiate: http %d", ErrTransient, resp.StatusCode)
	}

	var out struct {
		ConnectionToken string `json:"ConnectionToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: negotiate: %v", ErrTransient, err)
	}
	if out.ConnectionToken == "" {
		return "", fmt.Errorf("%w: negotiate returned empty token", ErrTransient)
	}
	return out.ConnectionToken, nil
}

// hubSend posts one hub method call and decodes the R payload into dst.
// A rejected token is refreshed and the call retried exactly once; a second
// failure surfaces as transient.
func (c *Client) hubSend(ctx context.Context, method string, args []any, dst any) error {
	tok, err := c.connectionToken(ctx)
	if err != nil {
		return err
	}

	err = c.hubSendWithToken(ctx, tok, method, args, dst)
	if err == nil {
		return nil
	}
	if !isProtocolErr(err) {
		return err
	}

	c.log.Debug("session token rejected; renegotiating", logx.String("method", method))
	c.invalidateToken(tok)
	tok, terr := c.connectionToken(ctx)
	if terr != nil {
		return terr
	}
	if err := c.hubSendWithToken(ctx, tok, method, args, dst); err != nil {
		if isProtocolErr(err) {
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}
	return nil
}

func (c *Client) hubSendWithToken(ctx context.Context, token, method string, args []any, dst any) error {
	if err := c.lim.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	payload, err := json.Marshal(hubRequest{H: hubName, M: method, A: args, I: 0})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	q := url.Values{}
	q.Set("transport", "serverSentEvents")
	q.Set("clientProtocol", "2.1")
	q.Set("connectionToken", token)
	q.Set("connectionData", `[{"name":"`+hubName+`"}]`)

	form := url.Values{}
	form.Set("data", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.PollBase+"/signalr/send?"+q.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Origin", fmt.Sprintf(c.cfg.WebBaseTemplate, c.fed.Slug))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: http %d", ErrProtocol, method, resp.StatusCode)
	case resp.StatusCode/100 != 2:
		return fmt.Errorf("%w: %s: http %d", ErrTransient, method, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var envelope struct {
		R json.RawMessage `json:"R"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransient, method, err)
	}
	if len(envelope.R) == 0 {
		// The hub answers token problems with an empty envelope rather than
		// an HTTP error.
		return fmt.Errorf("%w: %s: empty hub response", ErrProtocol, method)
	}
	if err := json.Unmarshal(envelope.R, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransient, method, err)
	}
	return nil
}

func isProtocolErr(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// MatchStates batch-queries live match state for the given ids.
func (c *Client) MatchStates(ctx context.Context, matchIDs []int) ([]MatchState, error) {
	if len(matchIDs) == 0 {
		return nil, nil
	}
	idList := make([]string, 0, len(matchIDs))
	for _, id := range matchIDs {
		idList = append(idList, strconv.Itoa(id))
	}

	// Upstream field quirk: the *Empty fields actually carry the team names.
	var rows []struct {
		ChampionshipMatchID int    `json:"ChampionshipMatchID"`
		Status              int    `json:"Status"`
		Home                int    `json:"Home"`
		HomeEmpty           string `json:"HomeEmpty"`
		Guest               int    `json:"Guest"`
		GuestEmpty          string `json:"GuestEmpty"`
	}
	if err := c.hubSend(ctx, "getLiveScoreListData_From_ES", []any{strings.Join(idList, ";"), c.fed.Slug}, &rows); err != nil {
		return nil, err
	}

	out := make([]MatchState, 0, len(rows))
	for _, r := range rows {
		out = append(out, MatchState{
			MatchID:   r.ChampionshipMatchID,
			Status:    domain.MatchStatus(r.Status),
			HomeID:    r.Home,
			HomeName:  r.HomeEmpty,
			GuestID:   r.Guest,
			GuestName: r.GuestEmpty,
		})
	}
	return out, nil
}

// MatchRoster returns one side's roster-in-match, enriched with season-roster
// details (shirt number, full name, position) when the player is known there.
func (c *Client) MatchRoster(ctx context.Context, matchID, teamID, competitionID int) ([]domain.Player, error) {
	var rows []struct {
		PID int    `json:"PID"`
		N   int    `json:"N"`
		SR  string `json:"SR"`
		NM  string `json:"NM"`
	}
	if err := c.hubSend(ctx, "getRosterData", []any{strconv.Itoa(matchID), teamID, c.fed.Slug}, &rows); err != nil {
		return nil, err
	}

	season, err := c.TeamRoster(ctx, teamID, competitionID)
	if err != nil {
		c.log.Debug("season roster unavailable for enrichment", logx.Int("team_id", teamID), logx.Err(err))
	}
	bySeasonID := make(map[int]domain.Player, len(season))
	for _, p := range season {
		bySeasonID[p.ID] = p
	}

	players := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		p := domain.Player{
			ID:       r.PID,
			Number:   r.N,
			FullName: strings.TrimSpace(r.SR + " " + r.NM),
		}
		if extra, ok := bySeasonID[r.PID]; ok {
			p.Number = extra.Number
			p.FullName = extra.FullName
			p.Position = extra.Position
		}
		players = append(players, p)
	}
	return players, nil
}

// LiveLineup returns the current on-court entries. Slots without a player id
// or shirt number are placeholders and dropped.
func (c *Client) LiveLineup(ctx context.Context, matchID int) ([]LineupEntry, error) {
	var rows []struct {
		PN  int  `json:"PN"`
		PID int  `json:"PID"`
		HG  bool `json:"HG"`
	}
	if err := c.hubSend(ctx, "getLineUpData", []any{strconv.Itoa(matchID), c.fed.Slug}, &rows); err != nil {
		return nil, err
	}

	out := make([]LineupEntry, 0, len(rows))
	for _, r := range rows {
		if r.PN == 0 && r.PID == 0 {
			continue
		}
		out = append(out, LineupEntry{PlayerID: r.PID, Number: r.PN, IsHome: r.HG})
	}
	return out, nil
}
