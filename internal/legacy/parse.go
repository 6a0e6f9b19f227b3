package legacy

import "encoding/json"

// ParseStats counts records dropped during decoding. A record is dropped when
// it fails to decode at all or decodes without an _id; both are row-skip
// conditions, never fatal.
type ParseStats struct {
	Total   int
	Dropped int
}

func decodeAll[T any](raw []json.RawMessage, id func(T) string) ([]T, ParseStats) {
	out := make([]T, 0, len(raw))
	stats := ParseStats{Total: len(raw)}
	for _, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil || id(v) == "" {
			stats.Dropped++
			continue
		}
		out = append(out, v)
	}
	return out, stats
}

// ParseCompanies decodes raw company records, dropping any without an _id.
func ParseCompanies(raw []json.RawMessage) ([]Company, ParseStats) {
	return decodeAll(raw, func(c Company) string { return c.ID })
}

// ParseUsers decodes raw user records.
func ParseUsers(raw []json.RawMessage) ([]User, ParseStats) {
	return decodeAll(raw, func(u User) string { return u.ID })
}

// ParseSections decodes raw section records.
func ParseSections(raw []json.RawMessage) ([]Section, ParseStats) {
	return decodeAll(raw, func(s Section) string { return s.ID })
}

// ParseSubsections decodes raw subsection records.
func ParseSubsections(raw []json.RawMessage) ([]Subsection, ParseStats) {
	return decodeAll(raw, func(s Subsection) string { return s.ID })
}

// ParseTags decodes raw tag records.
func ParseTags(raw []json.RawMessage) ([]Tag, ParseStats) {
	return decodeAll(raw, func(t Tag) string { return t.ID })
}

// ParseQuestions decodes raw question records.
func ParseQuestions(raw []json.RawMessage) ([]Question, ParseStats) {
	return decodeAll(raw, func(q Question) string { return q.ID })
}

// ParseChoices decodes raw choice records.
func ParseChoices(raw []json.RawMessage) ([]Choice, ParseStats) {
	return decodeAll(raw, func(c Choice) string { return c.ID })
}

// ParseListTableColumns decodes raw list-table column records.
func ParseListTableColumns(raw []json.RawMessage) ([]ListTableColumn, ParseStats) {
	return decodeAll(raw, func(c ListTableColumn) string { return c.ID })
}

// ParseSheets decodes raw sheet records.
func ParseSheets(raw []json.RawMessage) ([]Sheet, ParseStats) {
	return decodeAll(raw, func(s Sheet) string { return s.ID })
}

// ParseAnswers decodes raw answer records.
func ParseAnswers(raw []json.RawMessage) ([]Answer, ParseStats) {
	return decodeAll(raw, func(a Answer) string { return a.ID })
}
