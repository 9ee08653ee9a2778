// Package federation holds the static registry of upstream federations.
// The registry is immutable after startup; per-deployment competition
// allow-lists are merged in from config exactly once.
package federation

import (
	"fmt"
	"sort"
)

type Slug = string

// Info describes one upstream federation data source.
type Info struct {
	Slug           Slug
	Name           string
	Emoji          string
	CompetitionIDs []int
}

// Built-in registry. Slugs are the upstream subdomain names and must not be
// renamed; display names and emoji feed rendered notifications.
var registry = []Info{
	{Slug: "hos", Name: "Croatia", Emoji: "🇭🇷"},
	{Slug: "bevl", Name: "Belgium", Emoji: "🇧🇪"},
	{Slug: "hvf", Name: "Hungary", Emoji: "🇭🇺"},
	{Slug: "ossrb", Name: "Serbia", Emoji: "🇷🇸"},
	{Slug: "hvl", Name: "Greece (M)", Emoji: "🇬🇷"},
	{Slug: "eope", Name: "Greece (W)", Emoji: "🇬🇷"},
	{Slug: "bvf", Name: "Bulgaria", Emoji: "🇧🇬"},
	{Slug: "frv", Name: "Romania", Emoji: "🇷🇴"},
	{Slug: "qva", Name: "Qatar", Emoji: "🇶🇦"},
	{Slug: "cvf", Name: "Czechia", Emoji: "🇨🇿"},
	{Slug: "ozs", Name: "Slovenia", Emoji: "🇸🇮"},
	{Slug: "tvf", Name: "Turkey", Emoji: "🇹🇷"},
	{Slug: "nvbf", Name: "Norway", Emoji: "🇳🇴"},
	{Slug: "svf", Name: "Slovakia", Emoji: "🇸🇰"},
	{Slug: "fpv", Name: "Portugal", Emoji: "🇵🇹"},
	{Slug: "rfevb", Name: "Spain", Emoji: "🇪🇸"},
	{Slug: "bli", Name: "Iceland", Emoji: "🇮🇸"},
	{Slug: "lml", Name: "Finland", Emoji: "🇫🇮"},
	{Slug: "lnv", Name: "France", Emoji: "🇫🇷"},
	{Slug: "vbl", Name: "Germany", Emoji: "🇩🇪"},
	{Slug: "bvl", Name: "Baltic League", Emoji: "🌍"},
	{Slug: "mevza", Name: "MEVZA", Emoji: "🌍"},
	{Slug: "swi", Name: "Switzerland", Emoji: "🇨🇭"},
	{Slug: "uvf", Name: "Ukraine", Emoji: "🇺🇦"},
	{Slug: "fshv", Name: "Albania", Emoji: "🇦🇱"},
	{Slug: "kop", Name: "Cyprus", Emoji: "🇨🇾"},
	{Slug: "fpdv", Name: "Peru", Emoji: "🇵🇪"},
	{Slug: "evf", Name: "Estonia", Emoji: "🇪🇪"},
	{Slug: "aclav", Name: "Argentina", Emoji: "🇦🇷"},
	{Slug: "osbih", Name: "Bosnia", Emoji: "🇧🇦"},
	{Slug: "fbf", Name: "Faroe Islands", Emoji: "🇫🇴"},
}

// Registry is the merged, startup-frozen federation list.
type Registry struct {
	infos  []Info
	bySlug map[Slug]Info
}

// NewRegistry merges per-slug competition allow-lists into the built-in
// registry. Unknown slugs in the overrides are rejected so a config typo
// surfaces at startup rather than as a silently dead watcher.
func NewRegistry(competitionIDs map[Slug][]int) (*Registry, error) {
	bySlug := make(map[Slug]Info, len(registry))
	infos := make([]Info, 0, len(registry))
	for _, info := range registry {
		if ids, ok := competitionIDs[info.Slug]; ok {
			info.CompetitionIDs = append([]int(nil), ids...)
			sort.Ints(info.CompetitionIDs)
		}
		bySlug[info.Slug] = info
		infos = append(infos, info)
	}
	for slug := range competitionIDs {
		if _, ok := bySlug[slug]; !ok {
			return nil, fmt.Errorf("federation: unknown slug %q in competition_ids", slug)
		}
	}
	return &Registry{infos: infos, bySlug: bySlug}, nil
}

// All returns every federation in declaration order. The returned slice must
// not be mutated.
func (r *Registry) All() []Info { return r.infos }

func (r *Registry) Get(slug Slug) (Info, bool) {
	info, ok := r.bySlug[slug]
	return info, ok
}

func (r *Registry) Len() int { return len(r.infos) }
