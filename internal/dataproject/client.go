// Package dataproject talks to one federation's upstream: scrape-able HTML
// pages plus a token-scoped SignalR polling service. It normalizes both into
// the domain model and fails soft per-record: a malformed row costs that row,
// never the whole call.
package dataproject

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lineupwatch/internal/domain"
	"lineupwatch/internal/federation"
	"lineupwatch/pkg/logx"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:138.0) Gecko/20100101 Firefox/138.0"

// Client is the raw, uncached Fetcher for one federation.
type Client struct {
	fed  federation.Info
	cfg  Config
	http *http.Client
	log  logx.Logger
	lim  *rate.Limiter

	tokenMu sync.Mutex
	token   string
}

func NewClient(fed federation.Info, cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		fed:  fed,
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.CallTimeout},
		log:  log.With(logx.String("federation", fed.Slug)),
		lim:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

var _ Fetcher = (*Client)(nil)

func (c *Client) Federation() federation.Info { return c.fed }

func (c *Client) webURL(page string) string {
	return fmt.Sprintf(c.cfg.WebBaseTemplate, c.fed.Slug) + page
}

// getHTML fetches one page with the federation rate limit and call timeout
// applied. Extra cookies carry upstream quirks (timezone pinning, language).
func (c *Client) getHTML(ctx context.Context, pageURL string, params url.Values, cookies ...*http.Cookie) ([]byte, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	full := pageURL
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: GET %s: http %d", ErrTransient, pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return body, nil
}

// connectionToken returns the memoized session token, negotiating one on
// first use. Readers under concurrent scans may observe a momentarily-stale
// token; invalidateToken plus one retry makes that harmless.
func (c *Client) connectionToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	if c.token != "" {
		tok := c.token
		c.tokenMu.Unlock()
		return tok, nil
	}
	c.tokenMu.Unlock()

	tok, err := c.negotiate(ctx)
	if err != nil {
		return "", err
	}

	c.tokenMu.Lock()
	c.token = tok
	c.tokenMu.Unlock()
	return tok, nil
}

// invalidateToken drops the cached token only if it is still the one that
// failed, so a concurrent refresh is never clobbered.
func (c *Client) invalidateToken(stale string) {
	c.tokenMu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.tokenMu.Unlock()
}

// ListMatches composes the full acquisition flow from Fetcher primitives:
// scoreboard → batch match state → per-side match rosters → live lineup.
// It is a free function over Fetcher so the cache-aside decorator shields
// every intermediate step without the composite knowing about caching.
func ListMatches(ctx context.Context, f Fetcher, log logx.Logger) ([]domain.Match, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	board, err := f.Scoreboard(ctx)
	if err != nil {
		return nil, err
	}
	if len(board) == 0 {
		return nil, nil
	}

	byID := make(map[int]ScoreboardMatch, len(board))
	ids := make([]int, 0, len(board))
	for _, b := range board {
		byID[b.ID] = b
		ids = append(ids, b.ID)
	}

	states, err := f.MatchStates(ctx, ids)
	if err != nil {
		return nil, err
	}

	matches := make([]domain.Match, 0, len(states))
	for _, st := range states {
		ref, ok := byID[st.MatchID]
		if !ok {
			continue
		}
		comp, err := f.CompetitionByID(ctx, ref.CompetitionID)
		if err != nil || comp == nil {
			// Missing competition ref skips this match, not the whole call.
			log.Warn("skipping match without competition", logx.Int("match_id", st.MatchID), logx.Int("competition_id", ref.CompetitionID), logx.Err(err))
			continue
		}

		home, err := f.MatchRoster(ctx, st.MatchID, st.HomeID, comp.ID)
		if err != nil {
			log.Warn("home roster unavailable", logx.Int("match_id", st.MatchID), logx.Err(err))
		}
		guest, err := f.MatchRoster(ctx, st.MatchID, st.GuestID, comp.ID)
		if err != nil {
			log.Warn("guest roster unavailable", logx.Int("match_id", st.MatchID), logx.Err(err))
		}

		m := domain.Match{
			ID:               st.MatchID,
			Status:           st.Status,
			Competition:      *comp,
			MatchDateTimeUTC: ref.KickoffUTC,
			Home:             domain.Team{ID: st.HomeID, Name: st.HomeName, CompetitionID: comp.ID, Players: home},
			Guest:            domain.Team{ID: st.GuestID, Name: st.GuestName, CompetitionID: comp.ID, Players: guest},
		}
		applyLiveLineup(ctx, f, &m, log)
		matches = append(matches, m)
	}
	return matches, nil
}

// applyLiveLineup sets IsActive per player, but only when the lineup source
// returns exactly the twelve on-court entries. Partial data is worse than no
// data: anything else leaves IsActive unset everywhere.
func applyLiveLineup(ctx context.Context, f Fetcher, m *domain.Match, log logx.Logger) {
	const onCourtCount = 12

	entries, err := f.LiveLineup(ctx, m.ID)
	if err != nil {
		log.Debug("live lineup unavailable", logx.Int("match_id", m.ID), logx.Err(err))
		return
	}
	if len(entries) != onCourtCount {
		log.Debug("live lineup incomplete; leaving activity unset", logx.Int("match_id", m.ID), logx.Int("entries", len(entries)))
		return
	}

	mark := func(players []domain.Player, isHome bool) {
		for i := range players {
			active := false
			for _, e := range entries {
				if e.PlayerID == players[i].ID && e.IsHome == isHome && e.Number == players[i].Number {
					active = true
					break
				}
			}
			v := active
			players[i].IsActive = &v
		}
	}
	mark(m.Home.Players, true)
	mark(m.Guest.Players, false)
}

// parseKickoff interprets an upstream "HH:MM" (sometimes "HH.MM") time-of-day
// as today in UTC. Callers must not assume a date is present upstream.
func parseKickoff(raw string, now time.Time) (time.Time, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ".", ":")
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, err
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}
