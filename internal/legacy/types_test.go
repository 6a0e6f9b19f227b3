package legacy

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampDecoding(t *testing.T) {
	tests := []struct {
		name string
		json string
		want time.Time
	}{
		{"rfc3339", `"2024-03-15T10:30:00Z"`, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"rfc3339 nano", `"2024-03-15T10:30:00.123456789Z"`, time.Date(2024, 3, 15, 10, 30, 0, 123456789, time.UTC)},
		{"rfc3339 offset", `"2024-03-15T12:30:00+02:00"`, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"date only", `"2024-03-15"`, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"epoch millis", `1710498600000`, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"empty string", `""`, time.Time{}},
		{"garbage string", `"not a date"`, time.Time{}},
		{"null", `null`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.json), &ts))
			assert.True(t, ts.Equal(tt.want), "got %v, want %v", ts.Time, tt.want)
		})
	}
}

func TestTimestampMissingFieldIsZero(t *testing.T) {
	var s Sheet
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"s1","Name":"Widget"}`), &s))
	assert.True(t, s.ModifiedAt.IsZero())
}

func TestSheetGroupKey(t *testing.T) {
	a := Sheet{Name: "Widget", Company: "c1"}
	b := Sheet{Name: "  widget ", Company: "c1"}
	assert.Equal(t, a.GroupKey(), b.GroupKey())

	// Company beats the assigned-to fallback when both are set.
	c := Sheet{Name: "Widget", Company: "c1", AssignedToCompany: "c2"}
	assert.Equal(t, "c1", c.CompanyRef())
	d := Sheet{Name: "Widget", AssignedToCompany: "c2"}
	assert.Equal(t, "c2", d.CompanyRef())

	// Same name under different companies stays distinct.
	e := Sheet{Name: "Widget", Company: "c2"}
	assert.NotEqual(t, a.GroupKey(), e.GroupKey())
}

func TestParseDropsBadRecords(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"_id":"c1","Name":"Acme"}`),
		json.RawMessage(`{"Name":"missing id"}`),
		json.RawMessage(`not json`),
	}
	companies, stats := ParseCompanies(raw)
	require.Len(t, companies, 1)
	assert.Equal(t, "c1", companies[0].ID)
	assert.Equal(t, ParseStats{Total: 3, Dropped: 2}, stats)
}

func TestParseAnswerFields(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`{"_id":"a1","Sheet":"s1","Question":"q1","Value":"Yes",
			"Table Row":"r1","List Table Column":"col1","Modified Date":"2024-01-01T00:00:00Z"}`),
		json.RawMessage(`{"_id":"a2","Sheet":"s1","Question":"q1","Value":"No"}`),
	}
	answers, stats := ParseAnswers(raw)
	require.Len(t, answers, 2)
	assert.Zero(t, stats.Dropped)

	assert.True(t, answers[0].Tabular())
	assert.Equal(t, "r1", answers[0].TableRow)
	assert.Equal(t, "col1", answers[0].TableColumn)

	assert.False(t, answers[1].Tabular())
	assert.True(t, answers[1].ModifiedAt.IsZero())
}
