// Package bids locates and parses the study inputs inside a BIDS base directory.
package bids

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Sessions are the scanning sessions in concatenation order
var Sessions = []string{"ses-1", "ses-2"}

// Layout resolves input and output paths below a base directory
type Layout struct {
	BaseDir      string
	Participants string
	OutDir       string
}

// NewLayout fills empty participants and output paths from baseDir
func NewLayout(baseDir, participants, outDir string) Layout {
	if participants == "" {
		participants = filepath.Join(baseDir, "bids", "participants.tsv")
	}
	if outDir == "" {
		outDir = filepath.Join(baseDir, "derivatives", "decoding")
	}

	return Layout{BaseDir: baseDir, Participants: participants, OutDir: outDir}
}

func (l Layout) preprocessing(parts ...string) string {
	return filepath.Join(append([]string{l.BaseDir, "derivatives", "preprocessing"}, parts...)...)
}

// EventLog is the behavioral log of one session for the given event file
func (l Layout) EventLog(sub, ses, eventFile string) string {
	name := fmt.Sprintf("%s_%s_task-nav_events-standard-%s.tsv", sub, ses, eventFile)
	return l.preprocessing("logfile", sub, ses, name)
}

// Bold is the preprocessed 4-D BOLD image of one session
func (l Layout) Bold(sub, ses string) string {
	name := fmt.Sprintf("%s_%s_task-nav_space-T1w_desc-preproc_bold.nii", sub, ses)
	return l.preprocessing("fmriprep", sub, ses, "func", name)
}

// Segmentation is the label volume of one session in BOLD space
func (l Layout) Segmentation(sub, ses, seg string) string {
	name := fmt.Sprintf("%s_%s_task-nav_space-T1w_desc-%s_dseg.nii", sub, ses, seg)
	return l.preprocessing("fmriprep", sub, ses, "func", name)
}

// SegmentationLabels is the index/name lookup table of a segmentation
func (l Layout) SegmentationLabels(seg string) string {
	return l.preprocessing("fmriprep", "desc-"+seg+"_dseg.tsv")
}

// SignalFile is the extracted samples-by-voxels matrix of one session
func (l Layout) SignalFile(modality, sub, ses string, maskIndex []int) string {
	name := fmt.Sprintf("%s_%s_mask-%s_bold.npy", sub, ses, MaskLabel(maskIndex))
	return filepath.Join(l.OutDir, modality, sub, name)
}

// MaskVoxels is the list of voxel coordinates kept by a mask
func (l Layout) MaskVoxels(modality, sub, seg string, maskIndex []int) string {
	name := fmt.Sprintf("%s_seg-%s_mask-%s_voxels.npy", sub, seg, MaskLabel(maskIndex))
	return filepath.Join(l.OutDir, modality, sub, name)
}

// ResultDir is where the result tables of one participant go
func (l Layout) ResultDir(modality, sub string, buffering bool) string {
	leaf := "no_buffer"
	if buffering {
		leaf = "buffer"
	}
	return filepath.Join(l.OutDir, modality, sub, leaf)
}

// MaskLabel joins label indices with '-'
func MaskLabel(maskIndex []int) string {
	parts := make([]string, len(maskIndex))
	for i, idx := range maskIndex {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, "-")
}
