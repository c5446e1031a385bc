package pgstore

import (
	"encoding/json"
	"fmt"
)

// marshalSummary renders a SyncAttempt.SummaryBlob per-kind counter map
// as JSON text (spec.md §3: "summaryBlob is a JSON object of per-kind
// counters").
func marshalSummary(m map[string]int) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("pgstore: marshal summary blob: %w", err)
	}
	return string(b), nil
}

func unmarshalSummary(raw []byte) (map[string]int, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]int
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("pgstore: unmarshal summary blob: %w", err)
	}
	return m, nil
}

func marshalFieldList(fields []string) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("pgstore: marshal field list: %w", err)
	}
	return string(b), nil
}

func unmarshalFieldList(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("pgstore: unmarshal field list: %w", err)
	}
	return fields, nil
}
