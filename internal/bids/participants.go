package bids

import (
	"fmt"

	"github.com/KyungWonPark/Decoding/internal/io"
)

// Participant is one row of participants.tsv
type Participant struct {
	ID           string
	Age          string
	Sex          string
	Group        string
	Intervention [2]string
}

// LookupParticipant reads the participants table and returns the row of id
func LookupParticipant(path, id string) (Participant, error) {
	t, err := io.ReadTable(path)
	if err != nil {
		return Participant{}, err
	}
	if t.Col("participant_id") < 0 {
		return Participant{}, fmt.Errorf("LookupParticipant: %s has no participant_id column", path)
	}

	for i := range t.Rows {
		if t.Value(i, "participant_id") != id {
			continue
		}
		return Participant{
			ID:    id,
			Age:   t.Value(i, "age"),
			Sex:   t.Value(i, "sex"),
			Group: t.Value(i, "group"),
			Intervention: [2]string{
				t.Value(i, "intervention_ses-1"),
				t.Value(i, "intervention_ses-2"),
			},
		}, nil
	}

	return Participant{}, fmt.Errorf("LookupParticipant: %s not found in %s", id, path)
}

// InterventionFor returns the intervention code of session 1 or 2
func (p Participant) InterventionFor(session int) string {
	if session < 1 || session > 2 {
		return io.NA
	}
	return p.Intervention[session-1]
}

// CombinedIntervention joins both sessions' codes; two control sessions collapse to "C"
func (p Participant) CombinedIntervention() string {
	combined := p.Intervention[0] + p.Intervention[1]
	if combined == "CC" {
		return "C"
	}
	return combined
}
