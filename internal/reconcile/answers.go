package reconcile

import "github.com/complyera/chainmigrate/internal/legacy"

// slotKey is the answer deduplication key. RowID and ColumnID are empty for
// scalar answers, so the same map serves both kinds without collision: a
// scalar slot and a tabular slot for the same question never share a key.
type slotKey struct {
	CompositeID string
	QuestionID  string
	RowID       string
	ColumnID    string
}

// ResolvedAnswer is a winning answer with all legacy references translated:
// CompositeID is the new sheet id, QuestionID the target-store question id.
type ResolvedAnswer struct {
	BubbleID    string
	CompositeID string
	QuestionID  string
	RowID       string
	ColumnID    string
	Value       string
	Comment     string
	ModifiedAt  legacy.Timestamp
}

// AnswerStats tallies the reconciliation pass.
type AnswerStats struct {
	Considered     int // total input answers
	UnmappedSheet  int // skipped: source sheet id has no composite mapping
	UnmappedQuest  int // skipped: question id has no target mapping
	StaleTableRows int // discarded: tabular answer from a non-latest version
	Superseded     int // lost a slot to a newer answer
	Winners        int
}

// ReconcileAnswers runs the single-pass answer dedup policy over the full
// legacy answer set.
//
// Scalar answers compete per (composite, question) across every version of
// the group: the record with the greatest modification time wins, because a
// scalar fact legitimately gets corrected across versions. Tabular answers
// compete per (composite, question, row, column) but only records from the
// group's latest legacy sheet are eligible at all; rows from older versions
// are discarded outright so a table never mixes rows from two snapshots.
//
// Within a slot, ties on modification time keep the incumbent, so for a given
// input order the result is deterministic and re-running over the same input
// yields the same winners.
//
// questionIDs maps legacy question ids to target-store question ids; answers
// whose sheet or question cannot be resolved are counted and skipped, never
// an error.
func ReconcileAnswers(answers []legacy.Answer, mapping *Mapping, questionIDs map[string]string) ([]ResolvedAnswer, AnswerStats) {
	slots := make(map[slotKey]ResolvedAnswer)
	order := make([]slotKey, 0, len(answers))
	stats := AnswerStats{Considered: len(answers)}

	for _, a := range answers {
		compositeID, ok := mapping.SheetToComposite[a.Sheet]
		if !ok {
			stats.UnmappedSheet++
			continue
		}
		questionID, ok := questionIDs[a.Question]
		if !ok {
			stats.UnmappedQuest++
			continue
		}

		key := slotKey{CompositeID: compositeID, QuestionID: questionID}
		if a.Tabular() {
			if mapping.LatestLegacySheet[compositeID] != a.Sheet {
				stats.StaleTableRows++
				continue
			}
			key.RowID = a.TableRow
			key.ColumnID = a.TableColumn
		}

		candidate := ResolvedAnswer{
			BubbleID:    a.ID,
			CompositeID: compositeID,
			QuestionID:  questionID,
			RowID:       key.RowID,
			ColumnID:    key.ColumnID,
			Value:       a.Value,
			Comment:     a.Comment,
			ModifiedAt:  a.ModifiedAt,
		}

		incumbent, exists := slots[key]
		if !exists {
			slots[key] = candidate
			order = append(order, key)
			continue
		}
		if candidate.ModifiedAt.After(incumbent.ModifiedAt.Time) {
			slots[key] = candidate
		}
		stats.Superseded++
	}

	winners := make([]ResolvedAnswer, 0, len(slots))
	for _, key := range order {
		winners = append(winners, slots[key])
	}
	stats.Winners = len(winners)
	return winners, stats
}
