package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lineupwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "watch.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAddAndListSelections(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, playerID := range []int{3, 1, 2} {
		if err := st.AddPlayer(ctx, 555, "lnv", 100, 7, playerID); err != nil {
			t.Fatalf("AddPlayer: %v", err)
		}
	}
	if err := st.AddPlayer(ctx, 555, "lnv", 200, 7, 9); err != nil {
		t.Fatalf("AddPlayer second team: %v", err)
	}
	if err := st.AddPlayer(ctx, 777, "tvf", 300, 14, 5); err != nil {
		t.Fatalf("AddPlayer other user: %v", err)
	}

	sels, err := st.SelectionsByFederation(ctx, "lnv")
	if err != nil {
		t.Fatalf("SelectionsByFederation: %v", err)
	}
	if len(sels) != 2 {
		t.Fatalf("got %d selections, want 2", len(sels))
	}
	first := sels[0]
	if first.UserID != 555 || first.TeamID != 100 || first.CompetitionID != 7 {
		t.Fatalf("unexpected selection: %+v", first)
	}
	if len(first.PlayerIDs) != 3 || first.PlayerIDs[0] != 1 || first.PlayerIDs[2] != 3 {
		t.Fatalf("player ids not grouped sorted: %v", first.PlayerIDs)
	}
	if sels[1].TeamID != 200 || len(sels[1].PlayerIDs) != 1 {
		t.Fatalf("unexpected second selection: %+v", sels[1])
	}
}

func TestAddPlayerIdempotentAndUpdatesCompetition(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.AddPlayer(ctx, 555, "lnv", 100, 7, 1); err != nil {
		t.Fatalf("AddPlayer: %v", err)
	}
	// Re-adding moves the selection to the new competition, nothing else.
	if err := st.AddPlayer(ctx, 555, "lnv", 100, 8, 1); err != nil {
		t.Fatalf("re-AddPlayer: %v", err)
	}

	sels, err := st.SelectionsForUser(ctx, 555)
	if err != nil {
		t.Fatalf("SelectionsForUser: %v", err)
	}
	if len(sels) != 1 || len(sels[0].PlayerIDs) != 1 {
		t.Fatalf("duplicate add changed cardinality: %+v", sels)
	}
	if sels[0].CompetitionID != 8 {
		t.Fatalf("competition id = %d, want 8", sels[0].CompetitionID)
	}
}

func TestRemovePlayerReportsRemoval(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_ = st.AddPlayer(ctx, 555, "lnv", 100, 7, 1)

	removed, err := st.RemovePlayer(ctx, 555, "lnv", 100, 1)
	if err != nil || !removed {
		t.Fatalf("RemovePlayer = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = st.RemovePlayer(ctx, 555, "lnv", 100, 1)
	if err != nil || removed {
		t.Fatalf("second RemovePlayer = (%v, %v), want (false, nil)", removed, err)
	}

	// Removing the last player removes the selection entirely.
	sels, err := st.SelectionsByFederation(ctx, "lnv")
	if err != nil {
		t.Fatalf("SelectionsByFederation: %v", err)
	}
	if len(sels) != 0 {
		t.Fatalf("empty selection survived: %+v", sels)
	}
}

func TestRemoveTeamAndFederation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_ = st.AddPlayer(ctx, 555, "lnv", 100, 7, 1)
	_ = st.AddPlayer(ctx, 555, "lnv", 200, 7, 2)
	_ = st.AddPlayer(ctx, 555, "tvf", 300, 14, 3)

	if err := st.RemoveTeam(ctx, 555, "lnv", 100); err != nil {
		t.Fatalf("RemoveTeam: %v", err)
	}
	sels, _ := st.SelectionsByFederation(ctx, "lnv")
	if len(sels) != 1 || sels[0].TeamID != 200 {
		t.Fatalf("RemoveTeam left %+v", sels)
	}

	if err := st.RemoveFederation(ctx, 555, "lnv"); err != nil {
		t.Fatalf("RemoveFederation: %v", err)
	}
	sels, _ = st.SelectionsByFederation(ctx, "lnv")
	if len(sels) != 0 {
		t.Fatalf("RemoveFederation left %+v", sels)
	}
	// Other federations are untouched.
	sels, _ = st.SelectionsByFederation(ctx, "tvf")
	if len(sels) != 1 {
		t.Fatalf("tvf selection lost: %+v", sels)
	}
}

func TestSelectionsByFederationTeam(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	_ = st.AddPlayer(ctx, 555, "lnv", 100, 7, 1)
	_ = st.AddPlayer(ctx, 777, "lnv", 100, 7, 2)
	_ = st.AddPlayer(ctx, 555, "lnv", 200, 7, 3)

	sels, err := st.SelectionsByFederationTeam(ctx, "lnv", 100)
	if err != nil {
		t.Fatalf("SelectionsByFederationTeam: %v", err)
	}
	if len(sels) != 2 {
		t.Fatalf("got %d selections for team 100, want 2", len(sels))
	}
	for _, sel := range sels {
		if sel.TeamID != 100 {
			t.Fatalf("wrong team in result: %+v", sel)
		}
	}
}

func TestDedupLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	seen, err := st.HasDedup(ctx, "k1")
	if err != nil || seen {
		t.Fatalf("HasDedup on empty = (%v, %v)", seen, err)
	}

	if err := st.PutDedup(ctx, "k1", now.Add(-20*24*time.Hour)); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}
	if err := st.PutDedup(ctx, "k2", now); err != nil {
		t.Fatalf("PutDedup: %v", err)
	}

	seen, err = st.HasDedup(ctx, "k1")
	if err != nil || !seen {
		t.Fatalf("HasDedup(k1) = (%v, %v), want (true, nil)", seen, err)
	}

	pruned, err := st.PruneDedup(ctx, now.Add(-10*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneDedup: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned %d marks, want 1", pruned)
	}
	if seen, _ := st.HasDedup(ctx, "k1"); seen {
		t.Fatal("pruned mark still visible")
	}
	if seen, _ := st.HasDedup(ctx, "k2"); !seen {
		t.Fatal("fresh mark was pruned")
	}
}

func TestPutDedupRefreshesTimestamp(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)

	_ = st.PutDedup(ctx, "k", now.Add(-20*24*time.Hour))
	_ = st.PutDedup(ctx, "k", now)

	pruned, err := st.PruneDedup(ctx, now.Add(-10*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneDedup: %v", err)
	}
	if pruned != 0 {
		t.Fatalf("refreshed mark was pruned (%d)", pruned)
	}
}
