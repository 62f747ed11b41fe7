package rawdata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Grid is a decoded dataset: the column order of the first row and every
// row's cells in that order.
type Grid struct {
	Columns []string
	Rows    [][]string
	// Total counts every row in the payload, including rows beyond the
	// display limit.
	Total int
}

// Truncated reports whether rows were dropped for display.
func (g Grid) Truncated() bool {
	return g.Total > len(g.Rows)
}

var errNotArray = errors.New("dataset is not an array of objects")

// DecodeGrid reads a JSON array of flat objects. Columns follow the key
// order of the first object; keys that only appear in later rows are
// ignored. At most limit rows are kept when limit > 0.
func DecodeGrid(raw json.RawMessage, limit int) (Grid, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return Grid{}, fmt.Errorf("decode dataset: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		if tok == nil {
			return Grid{}, nil
		}
		return Grid{}, errNotArray
	}

	var g Grid
	for dec.More() {
		keys, cells, err := readObject(dec)
		if err != nil {
			return Grid{}, err
		}
		if g.Columns == nil {
			g.Columns = keys
		}
		g.Total++
		if limit > 0 && len(g.Rows) >= limit {
			continue
		}
		row := make([]string, len(g.Columns))
		for i, c := range g.Columns {
			row[i] = cells[c]
		}
		g.Rows = append(g.Rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return Grid{}, fmt.Errorf("decode dataset: %w", err)
	}
	return g, nil
}

// readObject reads one object, returning its keys in order and each value
// rendered as text.
func readObject(dec *json.Decoder) ([]string, map[string]string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("decode dataset: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errNotArray
	}
	var keys []string
	cells := map[string]string{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode dataset: %w", err)
		}
		key, _ := kt.(string)
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("decode dataset: %w", err)
		}
		if _, seen := cells[key]; !seen {
			keys = append(keys, key)
		}
		cells[key] = cellText(v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, fmt.Errorf("decode dataset: %w", err)
	}
	return keys, cells, nil
}

func cellText(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	switch {
	case len(v) == 0, string(v) == "null":
		return ""
	case v[0] == '"':
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			return s
		}
	}
	return string(v)
}
