package loader

import (
	"encoding/json"
	"fmt"
)

// LoadDashboards scans root/subpath for dashboard files. A dashboard must be
// a well-formed JSON object; its panels and queries are opaque here — their
// semantic correctness is the dashboard store's concern.
func LoadDashboards(root, subpath string) ([]Record, []FileError, error) {
	return load(root, subpath, dashboardExtensions, parseDashboard)
}

func parseDashboard(relPath string, data []byte) (Record, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return Record{}, fmt.Errorf("not a JSON document: %w", err)
	}
	if len(doc) == 0 {
		return Record{}, fmt.Errorf("empty dashboard document")
	}

	// Re-marshal into compact form with sorted top-level keys.
	payload, err := json.Marshal(doc)
	if err != nil {
		return Record{}, err
	}
	return Record{Name: RecordName(relPath), Payload: payload}, nil
}
