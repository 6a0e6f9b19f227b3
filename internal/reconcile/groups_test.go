package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/complyera/chainmigrate/internal/legacy"
)

func ts(s string) legacy.Timestamp {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return legacy.Timestamp{Time: t}
}

func sequentialIDs() NewIDFunc {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("composite-%d", n)
	}
}

func TestGroupSheetsCaseInsensitiveKey(t *testing.T) {
	sheets := []legacy.Sheet{
		{ID: "a", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-01-01")},
		{ID: "b", Name: "widget", Company: "C1", ModifiedAt: ts("2024-06-01")},
		{ID: "c", Name: "Widget", Company: "C2", ModifiedAt: ts("2024-03-01")},
	}

	groups := GroupSheets(sheets)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	var widgetC1 *Group
	for i := range groups {
		if groups[i].Key == "widget|C1" {
			widgetC1 = &groups[i]
		}
	}
	if widgetC1 == nil {
		t.Fatalf("no group for widget|C1; keys: %v", []string{groups[0].Key, groups[1].Key})
	}
	if len(widgetC1.Versions) != 2 {
		t.Fatalf("expected 2 versions in widget|C1, got %d", len(widgetC1.Versions))
	}
	if widgetC1.Latest().ID != "b" {
		t.Errorf("expected latest = b, got %s", widgetC1.Latest().ID)
	}
}

func TestGroupSheetsAssignedToFallback(t *testing.T) {
	sheets := []legacy.Sheet{
		{ID: "a", Name: "Gadget", AssignedToCompany: "C9", ModifiedAt: ts("2024-01-01")},
		{ID: "b", Name: "Gadget", AssignedToCompany: "C9", ModifiedAt: ts("2024-02-01")},
		{ID: "c", Name: "Gadget", ModifiedAt: ts("2024-02-01")},
	}

	groups := GroupSheets(sheets)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups (assigned-to and empty company ref), got %d", len(groups))
	}
	for _, g := range groups {
		switch g.Key {
		case "gadget|C9":
			if len(g.Versions) != 2 {
				t.Errorf("gadget|C9: expected 2 versions, got %d", len(g.Versions))
			}
		case "gadget|":
			if len(g.Versions) != 1 {
				t.Errorf("gadget|: expected 1 version, got %d", len(g.Versions))
			}
		default:
			t.Errorf("unexpected group key %q", g.Key)
		}
	}
}

func TestGroupSheetsPermutationInsensitive(t *testing.T) {
	base := []legacy.Sheet{
		{ID: "a", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-01-01")},
		{ID: "b", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-06-01")},
		{ID: "c", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-03-01")},
	}
	permutations := [][]legacy.Sheet{
		{base[0], base[1], base[2]},
		{base[2], base[0], base[1]},
		{base[1], base[2], base[0]},
	}

	for i, perm := range permutations {
		groups := GroupSheets(perm)
		if len(groups) != 1 {
			t.Fatalf("perm %d: expected 1 group, got %d", i, len(groups))
		}
		if got := groups[0].Latest().ID; got != "b" {
			t.Errorf("perm %d: expected latest = b, got %s", i, got)
		}
		if len(groups[0].Versions) != 3 {
			t.Errorf("perm %d: expected 3 versions, got %d", i, len(groups[0].Versions))
		}
	}
}

func TestGroupSheetsEqualTimestampTieBreak(t *testing.T) {
	// Equal modification times keep export order: first-seen wins latest.
	sheets := []legacy.Sheet{
		{ID: "first", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-06-01")},
		{ID: "second", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-06-01")},
	}

	groups := GroupSheets(sheets)
	if got := groups[0].Latest().ID; got != "first" {
		t.Errorf("expected first-seen record to win the tie, got %s", got)
	}
}

func TestGroupSheetsMissingTimestampIsOldest(t *testing.T) {
	sheets := []legacy.Sheet{
		{ID: "undated", Name: "Widget", Company: "C1"},
		{ID: "dated", Name: "Widget", Company: "C1", ModifiedAt: ts("2020-01-01")},
	}

	groups := GroupSheets(sheets)
	if got := groups[0].Latest().ID; got != "dated" {
		t.Errorf("zero timestamp should sort last, latest = %s", got)
	}
}

func TestBuildComposites(t *testing.T) {
	sheets := []legacy.Sheet{
		{ID: "a", Name: "Widget", Company: "C1", Status: "draft", Tags: []string{"t1"}, ModifiedAt: ts("2024-01-01")},
		{ID: "b", Name: "widget", Company: "C1", Status: "submitted", Creator: "u1", Tags: []string{"t2"}, ModifiedAt: ts("2024-06-01")},
	}

	composites, mapping := BuildComposites(GroupSheets(sheets), sequentialIDs())
	if len(composites) != 1 {
		t.Fatalf("expected 1 composite, got %d", len(composites))
	}

	c := composites[0]
	if c.Version != 2 {
		t.Errorf("version = %d, want 2", c.Version)
	}
	if c.BubbleID != "b" {
		t.Errorf("bubble id = %s, want latest legacy id b", c.BubbleID)
	}
	if c.Status != "submitted" || c.CreatorID != "u1" {
		t.Errorf("scalar fields should come from latest version, got status=%s creator=%s", c.Status, c.CreatorID)
	}
	if len(c.TagIDs) != 2 {
		t.Errorf("tags should union across versions, got %v", c.TagIDs)
	}

	if mapping.SheetToComposite["a"] != c.ID || mapping.SheetToComposite["b"] != c.ID {
		t.Errorf("all legacy ids must map to the composite id: %v", mapping.SheetToComposite)
	}
	if mapping.LatestLegacySheet[c.ID] != "b" {
		t.Errorf("latest legacy sheet = %s, want b", mapping.LatestLegacySheet[c.ID])
	}
}

func TestBuildCompositesDistinctIDsPerGroup(t *testing.T) {
	sheets := []legacy.Sheet{
		{ID: "a", Name: "Widget", Company: "C1", ModifiedAt: ts("2024-01-01")},
		{ID: "b", Name: "Gadget", Company: "C1", ModifiedAt: ts("2024-01-01")},
	}

	composites, _ := BuildComposites(GroupSheets(sheets), nil)
	if len(composites) != 2 {
		t.Fatalf("expected 2 composites, got %d", len(composites))
	}
	if composites[0].ID == composites[1].ID {
		t.Errorf("composite ids must be unique per group")
	}
}
