package bubble

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/complyera/chainmigrate/internal/legacy"
)

// ExportCache persists one JSON file per entity type under a fixed export
// directory. Presence of the file is the only validity signal: no TTL, no
// integrity check. Delete the file to force a refetch.
type ExportCache struct {
	Dir string
}

func (c ExportCache) path(entity legacy.EntityType) string {
	return filepath.Join(c.Dir, string(entity)+".json")
}

// Load returns the cached records for an entity, or ok=false when no cache
// file exists. A present-but-unreadable file is an error, not a miss, so a
// truncated cache never silently triggers a refetch that masks the problem.
func (c ExportCache) Load(entity legacy.EntityType) ([]json.RawMessage, bool, error) {
	data, err := os.ReadFile(c.path(entity))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache for %s: %w", entity, err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false, fmt.Errorf("decode cache for %s: %w", entity, err)
	}
	return records, true, nil
}

// Save writes the full record set for an entity, creating the export
// directory if needed.
func (c ExportCache) Save(entity legacy.EntityType, records []json.RawMessage) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path(entity), data, 0o644); err != nil {
		return fmt.Errorf("write cache for %s: %w", entity, err)
	}
	return nil
}
