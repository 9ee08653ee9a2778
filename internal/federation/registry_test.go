package federation

import "testing"

func TestNewRegistryMergesCompetitionIDs(t *testing.T) {
	reg, err := NewRegistry(map[Slug][]int{"lnv": {92, 89}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	info, ok := reg.Get("lnv")
	if !ok {
		t.Fatal("lnv must be registered")
	}
	if len(info.CompetitionIDs) != 2 || info.CompetitionIDs[0] != 89 || info.CompetitionIDs[1] != 92 {
		t.Fatalf("competition ids not merged sorted: %v", info.CompetitionIDs)
	}

	// Slugs without overrides carry no allow-list.
	other, ok := reg.Get("tvf")
	if !ok {
		t.Fatal("tvf must be registered")
	}
	if len(other.CompetitionIDs) != 0 {
		t.Fatalf("unexpected allow-list for tvf: %v", other.CompetitionIDs)
	}
}

func TestNewRegistryRejectsUnknownSlug(t *testing.T) {
	if _, err := NewRegistry(map[Slug][]int{"nope": {1}}); err == nil {
		t.Fatal("expected error for unknown slug")
	}
}

func TestRegistryAllKeepsBuiltinOrder(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	all := reg.All()
	if len(all) != reg.Len() {
		t.Fatalf("All() returned %d infos, Len() = %d", len(all), reg.Len())
	}
	if all[0].Slug != "hos" {
		t.Fatalf("first federation = %q, want hos", all[0].Slug)
	}
	for _, info := range all {
		if info.Slug == "" || info.Name == "" || info.Emoji == "" {
			t.Fatalf("incomplete registry entry: %+v", info)
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg, err := NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, ok := reg.Get("volleyland"); ok {
		t.Fatal("unknown slug must not resolve")
	}
}
