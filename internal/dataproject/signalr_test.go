package dataproject

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineupwatch/internal/federation"
	"lineupwatch/pkg/logx"
)

// hubServer fakes the polling service: negotiate hands out numbered tokens and
// send validates them, answering from a per-method payload table.
type hubServer struct {
	negotiations atomic.Int64
	sends        atomic.Int64

	// validFrom rejects tokens issued before this negotiation round,
	// simulating server-side session expiry.
	validFrom atomic.Int64

	payload func(method string, args []any) (any, bool)
}

func (h *hubServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/signalr/negotiate", func(w http.ResponseWriter, r *http.Request) {
		n := h.negotiations.Add(1)
		assert.Equal(t, "2.1", r.URL.Query().Get("clientProtocol"))
		assert.Contains(t, r.URL.Query().Get("connectionData"), hubName)
		_ = json.NewEncoder(w).Encode(map[string]string{"ConnectionToken": fmt.Sprintf("tok-%d", n)})
	})
	mux.HandleFunc("/signalr/send", func(w http.ResponseWriter, r *http.Request) {
		h.sends.Add(1)
		tok := r.URL.Query().Get("connectionToken")
		var round int64
		_, _ = fmt.Sscanf(tok, "tok-%d", &round)
		if round < h.validFrom.Load() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		require.Equal(t, "serverSentEvents", r.URL.Query().Get("transport"))

		require.NoError(t, r.ParseForm())
		var env hubRequest
		require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("data")), &env))
		require.Equal(t, hubName, env.H)

		result, ok := h.payload(env.M, env.A)
		if !ok {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"R": result})
	})
	return mux
}

func hubClient(t *testing.T, h *hubServer) *Client {
	t.Helper()
	srv := httptest.NewServer(h.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(federation.Info{Slug: "lnv"}, Config{
		WebBaseTemplate: srv.URL + "/%s",
		PollBase:        srv.URL,
		CallTimeout:     5 * time.Second,
		RatePerSec:      1000,
	}, logx.Nop())
}

func TestMatchStates(t *testing.T) {
	hub := &hubServer{payload: func(method string, args []any) (any, bool) {
		require.Equal(t, "getLiveScoreListData_From_ES", method)
		require.Len(t, args, 2)
		assert.Equal(t, "1;2", args[0])
		assert.Equal(t, "lnv", args[1])
		return []map[string]any{
			{"ChampionshipMatchID": 1, "Status": 0, "Home": 10, "HomeEmpty": "Paris", "Guest": 20, "GuestEmpty": "Lyon"},
			{"ChampionshipMatchID": 2, "Status": 1, "Home": 30, "HomeEmpty": "Nice", "Guest": 40, "GuestEmpty": "Tours"},
		}, true
	}}

	c := hubClient(t, hub)
	states, err := c.MatchStates(context.Background(), []int{1, 2})
	require.NoError(t, err)
	require.Len(t, states, 2)

	// The *Empty fields carry the team names upstream.
	assert.Equal(t, "Paris", states[0].HomeName)
	assert.Equal(t, "Lyon", states[0].GuestName)
	assert.Equal(t, 1, states[0].MatchID)
	assert.Equal(t, int64(1), hub.negotiations.Load())
}

func TestMatchStatesEmptyIDs(t *testing.T) {
	hub := &hubServer{payload: func(string, []any) (any, bool) { return nil, false }}
	c := hubClient(t, hub)
	states, err := c.MatchStates(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, states)
	assert.Equal(t, int64(0), hub.sends.Load())
}

func TestHubSendRenegotiatesOnRejectedToken(t *testing.T) {
	hub := &hubServer{payload: func(method string, args []any) (any, bool) {
		return []map[string]any{{"ChampionshipMatchID": 1}}, true
	}}

	c := hubClient(t, hub)

	// First call establishes tok-1.
	_, err := c.MatchStates(context.Background(), []int{1})
	require.NoError(t, err)
	require.Equal(t, int64(1), hub.negotiations.Load())

	// Expire every issued token; the next call must renegotiate and succeed.
	hub.validFrom.Store(2)
	states, err := c.MatchStates(context.Background(), []int{1})
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, int64(2), hub.negotiations.Load())
	assert.Equal(t, int64(3), hub.sends.Load(), "rejected send plus retried send")
}

func TestHubSendEmptyEnvelopeIsProtocolError(t *testing.T) {
	hub := &hubServer{payload: func(string, []any) (any, bool) { return nil, false }}
	c := hubClient(t, hub)

	_, err := c.MatchStates(context.Background(), []int{1})
	require.Error(t, err)
	// Both attempts saw an empty envelope, so the retry surfaces as transient.
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, int64(2), hub.negotiations.Load())
}

func TestLiveLineupDropsPlaceholders(t *testing.T) {
	hub := &hubServer{payload: func(method string, args []any) (any, bool) {
		require.Equal(t, "getLineUpData", method)
		return []map[string]any{
			{"PN": 5, "PID": 100, "HG": true},
			{"PN": 0, "PID": 0, "HG": false},
			{"PN": 9, "PID": 200, "HG": false},
		}, true
	}}

	c := hubClient(t, hub)
	entries, err := c.LiveLineup(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, LineupEntry{PlayerID: 100, Number: 5, IsHome: true}, entries[0])
	assert.Equal(t, LineupEntry{PlayerID: 200, Number: 9, IsHome: false}, entries[1])
}

func TestMatchRosterEnrichment(t *testing.T) {
	hub := &hubServer{payload: func(method string, args []any) (any, bool) {
		require.Equal(t, "getRosterData", method)
		return []map[string]any{
			{"PID": 55, "N": 99, "SR": "A.", "NM": "Dupont"},
			{"PID": 66, "N": 4, "SR": "B.", "NM": "Martin"},
		}, true
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/signalr/") {
			hub.handler(t).ServeHTTP(w, r)
			return
		}
		// Season roster page: knows player 55 under their real name/number.
		require.Contains(t, r.URL.Path, "CompetitionTeamDetails.aspx")
		_, _ = w.Write([]byte(teamRosterHTML))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(federation.Info{Slug: "lnv"}, Config{
		WebBaseTemplate: srv.URL + "/%s",
		PollBase:        srv.URL,
		CallTimeout:     5 * time.Second,
		RatePerSec:      1000,
	}, logx.Nop())

	players, err := c.MatchRoster(context.Background(), 42, 10, 7)
	require.NoError(t, err)
	require.Len(t, players, 2)

	// Season-roster details win for the known player.
	assert.Equal(t, 5, players[0].Number)
	assert.Equal(t, "Alice Dupont", players[0].FullName)
	assert.Equal(t, "S", string(players[0].Position))

	// The unknown player keeps the hub's abbreviated identity.
	assert.Equal(t, 4, players[1].Number)
	assert.Equal(t, "B. Martin", players[1].FullName)
}

func TestMatchRosterSurvivesMissingSeasonRoster(t *testing.T) {
	hub := &hubServer{payload: func(method string, args []any) (any, bool) {
		return []map[string]any{{"PID": 55, "N": 9, "SR": "A.", "NM": "Dupont"}}, true
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/signalr/") {
			hub.handler(t).ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(federation.Info{Slug: "lnv"}, Config{
		WebBaseTemplate: srv.URL + "/%s",
		PollBase:        srv.URL,
		CallTimeout:     5 * time.Second,
		RatePerSec:      1000,
	}, logx.Nop())

	players, err := c.MatchRoster(context.Background(), 42, 10, 7)
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "A. Dupont", players[0].FullName)
}
