package bids

import (
	"fmt"

	"github.com/KyungWonPark/Decoding/internal/io"
)

// LogRow is one behavioral log line: an event active during one raw sample
type LogRow struct {
	Event  int
	TR     int // 1-based sample index within the session
	Fold   int
	Buffer int
	Label  int // 0 when the row carries no label
}

// LabelColumns returns the columns consulted, in order, for the class label of an event file
func LabelColumns(eventFile, override string) []string {
	if override != "" {
		return []string{override}
	}

	switch eventFile {
	case "stand-dir", "walk-fwd", "walk-bwd":
		return []string{"bin_by_yaw"}
	case "turn":
		return []string{"turn_dir_by_yaw", "turn_dir_by_loc"}
	}
	return []string{"event_type"}
}

// ReadEventLog parses a behavioral log. The label of a row is the first present value among labelColumns.
func ReadEventLog(path string, labelColumns []string) ([]LogRow, error) {
	t, err := io.ReadTable(path)
	if err != nil {
		return nil, err
	}

	for _, col := range []string{"event", "tr", "fold", "buffer"} {
		if t.Col(col) < 0 {
			return nil, fmt.Errorf("ReadEventLog: %s has no %q column", path, col)
		}
	}
	found := false
	for _, col := range labelColumns {
		found = found || t.Col(col) >= 0
	}
	if !found {
		return nil, fmt.Errorf("ReadEventLog: %s has none of the label columns %v", path, labelColumns)
	}

	rows := make([]LogRow, 0, len(t.Rows))
	for i := range t.Rows {
		var row LogRow
		for _, f := range []struct {
			col string
			dst *int
		}{
			{"event", &row.Event},
			{"tr", &row.TR},
			{"fold", &row.Fold},
			{"buffer", &row.Buffer},
		} {
			v, ok := io.ParseInt(t.Value(i, f.col))
			if !ok {
				return nil, fmt.Errorf("ReadEventLog: %s line %d: bad %s value %q", path, i+2, f.col, t.Value(i, f.col))
			}
			*f.dst = v
		}

		for _, col := range labelColumns {
			if v, ok := io.ParseInt(t.Value(i, col)); ok {
				row.Label = v
				break
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}
