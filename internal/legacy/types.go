// Package legacy defines typed views over the raw JSON records exported from
// the Bubble backend. Bubble stores everything as schemaless objects with
// display-name field keys ("Modified Date", "Parent Question"); decoding them
// into explicit structs up front means the rest of the pipeline never does
// dynamic field lookups and missing fields surface as zero values, not
// silent falsiness.
package legacy

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityType names one legacy table on the Bubble side. The string value is
// the object name used in the REST path and in the export cache filename.
type EntityType string

const (
	EntityCompany         EntityType = "company"
	EntityUser            EntityType = "user"
	EntitySection         EntityType = "section"
	EntitySubsection      EntityType = "subsection"
	EntityTag             EntityType = "tag"
	EntityQuestion        EntityType = "question"
	EntityChoice          EntityType = "choice"
	EntityListTableColumn EntityType = "listtablecolumn"
	EntitySheet           EntityType = "sheet"
	EntityAnswer          EntityType = "answer"
)

// PrimaryEntities are the entity types drained with the plain paginated
// export. Answers are excluded: they exceed Bubble's cursor ceiling and use
// the per-sheet constrained export instead.
var PrimaryEntities = []EntityType{
	EntityCompany,
	EntityUser,
	EntitySection,
	EntitySubsection,
	EntityTag,
	EntityQuestion,
	EntityChoice,
	EntityListTableColumn,
	EntitySheet,
}

// Timestamp wraps time.Time with Bubble's tolerant date semantics: absent,
// empty, or unparseable values decode to the zero time rather than erroring,
// matching the "missing timestamp is epoch zero" ordering rule.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Numbers (epoch millis) show up in some bulk-created records.
		var ms int64
		if err2 := json.Unmarshal(data, &ms); err2 == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	t.Time = time.Time{}
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Company is a legacy supplier or customer organisation.
type Company struct {
	ID         string    `json:"_id"`
	Name       string    `json:"Name"`
	CreatedAt  Timestamp `json:"Created Date"`
	ModifiedAt Timestamp `json:"Modified Date"`
}

// User is a legacy platform account. Company holds the legacy company id.
type User struct {
	ID         string    `json:"_id"`
	Email      string    `json:"email"`
	Name       string    `json:"Name"`
	Company    string    `json:"Company"`
	CreatedAt  Timestamp `json:"Created Date"`
	ModifiedAt Timestamp `json:"Modified Date"`
}

// Section is a top-level questionnaire chapter.
type Section struct {
	ID    string  `json:"_id"`
	Name  string  `json:"Name"`
	Order float64 `json:"Order"`
}

// Subsection groups questions under a Section.
type Subsection struct {
	ID      string  `json:"_id"`
	Name    string  `json:"Name"`
	Section string  `json:"Section"`
	Order   float64 `json:"Order"`
}

// Tag is a free-form label attachable to questions and sheets.
type Tag struct {
	ID   string `json:"_id"`
	Name string `json:"Name"`
}

// Question is one canonical questionnaire question. Type distinguishes text,
// dropdown, and list-table questions on the Bubble side; ParentQuestion links
// a sub-question to its parent.
type Question struct {
	ID             string   `json:"_id"`
	Name           string   `json:"Name"`
	Subsection     string   `json:"Subsection"`
	Type           string   `json:"Type"`
	Order          float64  `json:"Order"`
	ParentQuestion string   `json:"Parent Question"`
	Tags           []string `json:"Tags"`
}

// Choice is one dropdown option belonging to a question.
type Choice struct {
	ID       string  `json:"_id"`
	Name     string  `json:"Name"`
	Question string  `json:"Question"`
	Order    float64 `json:"Order"`
}

// ListTableColumn is one column definition of a list-table question.
type ListTableColumn struct {
	ID       string  `json:"_id"`
	Name     string  `json:"Name"`
	Question string  `json:"Question"`
	Order    float64 `json:"Order"`
}

// Sheet is one historical edit of a questionnaire instance. Bubble created a
// fresh sheet row per edit instead of versioning in place, which is why the
// importer has to collapse them by (product name, company).
type Sheet struct {
	ID                string    `json:"_id"`
	Name              string    `json:"Name"`
	Company           string    `json:"Company"`
	AssignedToCompany string    `json:"Assigned To Company"`
	Status            string    `json:"Status"`
	Creator           string    `json:"Created By"`
	Tags              []string  `json:"Tags"`
	CreatedAt         Timestamp `json:"Created Date"`
	ModifiedAt        Timestamp `json:"Modified Date"`
}

// CompanyRef returns the company reference used for version grouping: the
// owning company when present, else the assigned-to company, else "".
func (s Sheet) CompanyRef() string {
	if s.Company != "" {
		return s.Company
	}
	return s.AssignedToCompany
}

// GroupKey is the version-grouping key: lowercased product name joined with
// the company reference. Sheets that differ only in name casing collapse
// into the same group.
func (s Sheet) GroupKey() string {
	return strings.ToLower(strings.TrimSpace(s.Name)) + "|" + s.CompanyRef()
}

// Answer is one legacy answer row. Sheet and Question hold legacy ids;
// TableRow/TableColumn are set only for list-table answers.
type Answer struct {
	ID          string    `json:"_id"`
	Sheet       string    `json:"Sheet"`
	Question    string    `json:"Question"`
	Value       string    `json:"Value"`
	Comment     string    `json:"Comment"`
	TableRow    string    `json:"Table Row"`
	TableColumn string    `json:"List Table Column"`
	ModifiedAt  Timestamp `json:"Modified Date"`
}

// Tabular reports whether the answer belongs to a list-table cell.
func (a Answer) Tabular() bool {
	return a.TableRow != ""
}
