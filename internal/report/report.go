// Package report turns cross-validation runs into the persisted result tables.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/crossval"
	"github.com/KyungWonPark/Decoding/internal/io"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

// Meta is what every table row is tagged with
type Meta struct {
	Config      config.Config
	Participant bids.Participant
}

var metaColumns = []string{
	"participant_id",
	"age",
	"sex",
	"group",
	"intervention",
	"mask_seg",
	"mask_index",
	"classifier",
	"smoothing_fwhm",
	"essential_confounds",
	"detrend",
	"high_pass",
	"ext_std_thres",
	"standardize",
	"n_bins",
	"event_file",
	"balancing_option",
	"balance_strategy",
	"x_val_split",
	"testset_buffer",
}

// values returns metaColumns for a row with the given intervention code
func (m Meta) values(intervention string) []string {
	s, d := m.Config.Signal, m.Config.Decoding
	return []string{
		m.Participant.ID,
		m.Participant.Age,
		m.Participant.Sex,
		m.Participant.Group,
		intervention,
		s.MaskSeg,
		bids.MaskLabel(s.MaskIndex),
		d.Classifier,
		io.FormatFloat(s.SmoothingFWHM),
		strconv.FormatBool(s.EssentialConfounds),
		strconv.FormatBool(s.Detrend),
		io.FormatFloat(s.HighPass),
		io.FormatFloat(s.ExtStdThres),
		s.Standardize,
		strconv.Itoa(d.NBins),
		d.EventFile,
		d.BalancingOption,
		d.BalanceStrategy,
		d.XValSplit,
		strconv.FormatBool(d.TestsetBuffer),
	}
}

// Stem names the result files of one scope. Every configuration axis that changes the result is encoded.
func Stem(m Meta, scope crossval.Scope) string {
	s, d := m.Config.Signal, m.Config.Decoding

	var b strings.Builder
	fmt.Fprintf(&b, "%s_%s_events-%s_mask-%s_xval-%s_clf-%s",
		m.Participant.ID, s.Modality, d.EventFile, bids.MaskLabel(s.MaskIndex), d.XValSplit, d.Classifier)

	if d.Buffering {
		fmt.Fprintf(&b, "_buffer-%d", scope.Buffer)
	}
	if d.WithinSession {
		b.WriteString("_within")
		if scope.Session > 0 {
			fmt.Fprintf(&b, "-%d", scope.Session)
		}
	}
	if d.Reorganize {
		b.WriteString("_reorg")
	}
	fmt.Fprintf(&b, "_bal-%s", d.BalancingOption)
	if d.Perm {
		b.WriteString("_perm")
	}

	return b.String()
}

// Tables are the four result tables of one scope
type Tables struct {
	Stem       string
	Pred       *io.Table
	Acc        *io.Table
	EventStats *io.Table
	Conf       *io.Table
}

// Assemble builds the tables of one scope
func Assemble(m Meta, res crossval.ScopeResult) *Tables {
	return &Tables{
		Stem:       Stem(m, res.Scope),
		Pred:       Predictions(m, res.Runs),
		Acc:        Accuracies(m, res.Runs),
		EventStats: EventStats(m, res.Runs),
		Conf:       Confusions(m, res.Runs),
	}
}

func permuted(runs []crossval.Run) bool {
	return len(runs) > 0 && runs[0].Perm >= 0
}

func binColumns(prefix string, nBins int) []string {
	out := make([]string, nBins)
	for k := range out {
		out[k] = prefix + strconv.Itoa(k+1)
	}
	return out
}

func formatBins(values []float64, nBins int) []string {
	out := make([]string, nBins)
	for k := range out {
		out[k] = io.NA
		if k < len(values) {
			out[k] = io.FormatFloat(values[k])
		}
	}
	return out
}

func optional(v int, ok bool) string {
	if !ok {
		return io.NA
	}
	return strconv.Itoa(v)
}

// Predictions is the per trial table. The fold column carries sub-folds for within-session sub-fold runs.
func Predictions(m Meta, runs []crossval.Run) *io.Table {
	nBins := m.Config.Decoding.NBins
	perm := permuted(runs)
	foldSplit := trial.SplitFold
	if m.Config.Decoding.WithinSession && m.Config.Split() == trial.SplitSubFold {
		foldSplit = trial.SplitSubFold
	}

	header := append([]string(nil), metaColumns...)
	header = append(header,
		"session", "fold", "sub_fold", "buffer", "event_type",
		"tr_adj", "tr", "tr_end", "event", "duration", "multi_event", "prediction")
	header = append(header, binColumns("proba_bin_", nBins)...)
	header = append(header, binColumns("corr_mean_pattern_bin_", nBins)...)
	if perm {
		header = append(header, "i_perm")
	}

	t := io.NewTable(header...)
	for _, run := range runs {
		for _, r := range run.Results {
			fold, ok := r.Label(foldSplit)
			row := m.values(m.Participant.InterventionFor(r.Session))
			row = append(row,
				strconv.Itoa(r.Session),
				optional(fold, ok),
				strconv.Itoa(r.SubFold),
				strconv.Itoa(r.Buffer),
				strconv.Itoa(r.EventType),
				strconv.Itoa(r.TRAdj),
				strconv.Itoa(r.TR),
				strconv.Itoa(r.TREnd),
				strconv.Itoa(r.Event),
				strconv.Itoa(r.Duration),
				strconv.FormatBool(r.MultiEvent),
				optional(r.Prediction, r.Prediction > 0),
			)
			row = append(row, formatBins(r.Proba, nBins)...)
			row = append(row, formatBins(r.Corr, nBins)...)
			if perm {
				row = append(row, strconv.Itoa(run.Perm))
			}
			t.Append(row...)
		}
	}

	return t
}

// Accuracies lists the balanced accuracy of every held-out fold and the pooled one
func Accuracies(m Meta, runs []crossval.Run) *io.Table {
	perm := permuted(runs)

	header := []string{"clf_acc", "held_out_split"}
	if perm {
		header = append(header, "i_perm")
	}
	header = append(header, metaColumns...)

	meta := m.values(m.Participant.CombinedIntervention())
	t := io.NewTable(header...)
	for _, run := range runs {
		for _, a := range run.Accuracy {
			row := []string{io.FormatFloat(a.Value), a.HeldOut}
			if perm {
				row = append(row, strconv.Itoa(run.Perm))
			}
			t.Append(append(row, meta...)...)
		}
	}

	return t
}

// EventStats lists class counts of the training, balanced training and test set of every held-out fold
func EventStats(m Meta, runs []crossval.Run) *io.Table {
	perm := permuted(runs)

	header := []string{"held_out_split", "set", "event_type", "count"}
	if perm {
		header = append(header, "i_perm")
	}
	header = append(header, metaColumns...)

	meta := m.values(m.Participant.CombinedIntervention())
	t := io.NewTable(header...)
	for _, run := range runs {
		for _, c := range run.Counts {
			row := []string{c.HeldOut, c.Set, strconv.Itoa(c.EventType), strconv.Itoa(c.Count)}
			if perm {
				row = append(row, strconv.Itoa(run.Perm))
			}
			t.Append(append(row, meta...)...)
		}
	}

	return t
}

// Confusions writes, per run, the rotated count rows followed by the aligned prediction and the confusion function
func Confusions(m Meta, runs []crossval.Run) *io.Table {
	nBins := m.Config.Decoding.NBins
	perm := permuted(runs)

	header := append([]string(nil), metaColumns...)
	header = append(header, "prediction")
	header = append(header, NewConfusion(nil, nBins).Offsets()...)
	if perm {
		header = append(header, "i_perm")
	}

	meta := m.values(m.Participant.CombinedIntervention())
	t := io.NewTable(header...)
	for _, run := range runs {
		c := NewConfusion(run.Results, nBins)

		add := func(name string, values []float64) {
			row := append(append([]string(nil), meta...), name)
			row = append(row, formatBins(values, nBins)...)
			if perm {
				row = append(row, strconv.Itoa(run.Perm))
			}
			t.Append(row...)
		}

		for x, counts := range c.Counts {
			add("raw_prediction_bin_"+strconv.Itoa(x+1), counts)
		}
		add("aligned_prediction", c.Aligned)
		add("confusion_function", c.Function)
	}

	return t
}

// ManifestName is the run manifest file name, shared by all scopes of a run.
// Buffering is left out since buffered runs already write to their own directory.
func ManifestName(m Meta) string {
	base := m
	base.Config.Decoding.Buffering = false
	return Stem(base, crossval.Scope{}) + "_params.yaml"
}
