// Package reconcile collapses the legacy sheet-per-edit history into one
// composite sheet per logical questionnaire instance and picks the winning
// answer for every answer slot. It is pure in-memory transformation: callers
// pass pre-fetched records in and persist the resulting structures, so the
// whole policy is testable without network or database access.
package reconcile

import (
	"sort"

	"github.com/google/uuid"

	"github.com/complyera/chainmigrate/internal/legacy"
)

// Group is the set of legacy sheets believed to be successive versions of the
// same questionnaire instance, keyed by (lowercased product name, company
// reference). Versions is ordered newest first.
type Group struct {
	Key      string
	Versions []legacy.Sheet
}

// Latest returns the newest version of the group. Groups are never empty.
func (g Group) Latest() legacy.Sheet {
	return g.Versions[0]
}

// GroupSheets partitions legacy sheets into version groups. Within a group,
// versions sort by modification time descending; the sort is stable, so
// records with equal timestamps keep their API export order and the
// first-seen record among equals is treated as latest. The returned slice is
// ordered by group key for deterministic iteration.
func GroupSheets(sheets []legacy.Sheet) []Group {
	byKey := make(map[string][]legacy.Sheet)
	for _, s := range sheets {
		key := s.GroupKey()
		byKey[key] = append(byKey[key], s)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([]Group, 0, len(keys))
	for _, key := range keys {
		versions := byKey[key]
		sort.SliceStable(versions, func(i, j int) bool {
			return versions[i].ModifiedAt.After(versions[j].ModifiedAt.Time)
		})
		groups = append(groups, Group{Key: key, Versions: versions})
	}
	return groups
}

// CompositeSheet is the canonical relational sheet written to the target
// store: one per group, scalar fields from the latest version, version count
// equal to the group's size, tags unioned across every version.
type CompositeSheet struct {
	ID         string // generated id for the relational row
	BubbleID   string // latest version's legacy id, kept for idempotent upserts
	Name       string
	Status     string
	CompanyID  string // legacy company id, resolved to a row id at write time
	CreatorID  string // legacy user id
	Version    int
	TagIDs     []string // legacy tag ids, unioned across versions
	CreatedAt  legacy.Timestamp
	ModifiedAt legacy.Timestamp
}

// Mapping carries the id translations the answer pass needs: every legacy
// sheet id in a group maps to the same composite id, and each composite id
// records which legacy sheet id is its latest version.
type Mapping struct {
	SheetToComposite  map[string]string // legacy sheet id -> composite id
	LatestLegacySheet map[string]string // composite id -> latest legacy sheet id
}

// NewIDFunc produces ids for composite sheets. The default is a random UUID;
// tests inject a deterministic sequence.
type NewIDFunc func() string

// BuildComposites turns version groups into composite sheet rows and the id
// mappings used by answer reconciliation. newID may be nil, in which case
// UUIDs are generated.
func BuildComposites(groups []Group, newID NewIDFunc) ([]CompositeSheet, *Mapping) {
	if newID == nil {
		newID = uuid.NewString
	}

	mapping := &Mapping{
		SheetToComposite:  make(map[string]string),
		LatestLegacySheet: make(map[string]string),
	}

	composites := make([]CompositeSheet, 0, len(groups))
	for _, g := range groups {
		latest := g.Latest()
		id := newID()

		for _, v := range g.Versions {
			mapping.SheetToComposite[v.ID] = id
		}
		mapping.LatestLegacySheet[id] = latest.ID

		composites = append(composites, CompositeSheet{
			ID:         id,
			BubbleID:   latest.ID,
			Name:       latest.Name,
			Status:     latest.Status,
			CompanyID:  latest.CompanyRef(),
			CreatorID:  latest.Creator,
			Version:    len(g.Versions),
			TagIDs:     unionTags(g.Versions),
			CreatedAt:  latest.CreatedAt,
			ModifiedAt: latest.ModifiedAt,
		})
	}
	return composites, mapping
}

// unionTags collects tag ids across all versions of a group, preserving
// first-seen order. Scalar fields come from the latest version only, but tags
// are cumulative: a tag applied to any historical version stays attached.
func unionTags(versions []legacy.Sheet) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range versions {
		for _, tag := range v.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
