package models

import (
	"encoding/json"
	"fmt"

	dErrors "safecircle/pkg/domain-errors"
)

type pathDocument struct {
	Entries []EscalationEntry `json:"entries"`
}

// ExportPath serializes an escalation path preserving entry order.
func ExportPath(path []EscalationEntry) ([]byte, error) {
	if path == nil {
		path = []EscalationEntry{}
	}
	b, err := json.Marshal(pathDocument{Entries: path})
	if err != nil {
		return nil, fmt.Errorf("export escalation path: %w", err)
	}
	return b, nil
}

// ImportPath parses a document produced by ExportPath and rejects paths that
// move down the hierarchy.
func ImportPath(data []byte) ([]EscalationEntry, error) {
	var doc pathDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "malformed escalation path")
	}
	if doc.Entries == nil {
		doc.Entries = []EscalationEntry{}
	}
	for i, e := range doc.Entries {
		if e.ToLevel <= e.FromLevel {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "entry %d does not climb the hierarchy", i)
		}
		if i > 0 && e.FromLevel < doc.Entries[i-1].ToLevel {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput, "entry %d re-enters a level that was already left", i)
		}
	}
	return doc.Entries, nil
}
