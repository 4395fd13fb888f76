package align

import (
	"fmt"
	"strconv"
	"strings"
)

// AlignmentError reports a behavioral log that does not fit the signal
type AlignmentError struct {
	Session int
	Line    int
	TR      int
	Samples int
	Reason  string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("session %d log line %d: tr %d with %d samples: %s", e.Session, e.Line, e.TR, e.Samples, e.Reason)
}

// ConstantSignalError reports signal rows dominated by a single value
type ConstantSignalError struct {
	Rows     []int
	Fraction float64
}

func (e *ConstantSignalError) Error() string {
	rows := make([]string, 0, len(e.Rows))
	for i, r := range e.Rows {
		if i == 10 {
			rows = append(rows, "...")
			break
		}
		rows = append(rows, strconv.Itoa(r))
	}
	return fmt.Sprintf("%d signal rows have one value in at least %g of voxels: [%s]", len(e.Rows), e.Fraction, strings.Join(rows, " "))
}
