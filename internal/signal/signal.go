// Package signal assembles the per-session signal matrices into one concatenated series.
package signal

import (
	"fmt"
	"unsafe"

	"github.com/ghetzel/shmtool/shm"
	"github.com/gonum/matrix/mat64"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/calc"
	"github.com/KyungWonPark/Decoding/internal/io"
)

// Options control loading and conditioning of the session matrices
type Options struct {
	PullExtremes bool
	ExtStdThres  float64
	Standardize  bool
	SharedMemory bool
	Workers      int
}

// Sessions is the concatenated samples-by-voxels signal of all sessions, in session order
type Sessions struct {
	Counts []int
	Signal *mat64.Dense

	seg  *shm.Segment
	base unsafe.Pointer
}

// Load reads one npy matrix per session and concatenates them
func Load(paths []string, opts Options) (*Sessions, error) {
	parts := make([]*mat64.Dense, len(paths))
	for i, path := range paths {
		m, err := io.NpytoMat64(path)
		if err != nil {
			return nil, err
		}

		rows, cols := m.Dims()
		log.WithFields(log.Fields{
			"file":    path,
			"samples": rows,
			"voxels":  cols,
		}).Debug("Signal loaded")

		parts[i] = m
	}

	if err := Condition(parts, opts); err != nil {
		return nil, err
	}

	return Concat(parts, opts.SharedMemory)
}

// Condition pulls extreme values back and standardizes each session in place
func Condition(parts []*mat64.Dense, opts Options) error {
	pl := calc.Init(opts.Workers)

	for i, m := range parts {
		if opts.PullExtremes {
			before, after, err := pl.PullExtremes(m, m, opts.ExtStdThres)
			if err != nil {
				return fmt.Errorf("session %d: %w", i+1, err)
			}
			log.WithFields(log.Fields{
				"session": i + 1,
				"before":  before,
				"after":   after,
			}).Info("Extreme values pulled towards mean")
		}

		if opts.Standardize {
			if err := pl.ZScoring(m, m); err != nil {
				return fmt.Errorf("session %d: %w", i+1, err)
			}
		}
	}

	return nil
}

// Concat stacks the session matrices. With useShm the result is backed by a SysV shared memory segment.
func Concat(parts []*mat64.Dense, useShm bool) (*Sessions, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("Concat: no sessions")
	}

	_, voxels := parts[0].Dims()
	counts := make([]int, len(parts))
	total := 0
	for i, m := range parts {
		rows, cols := m.Dims()
		if cols != voxels {
			return nil, fmt.Errorf("Concat: session %d has %d voxels when session 1 has %d", i+1, cols, voxels)
		}
		counts[i] = rows
		total += rows
	}

	s := &Sessions{Counts: counts}

	var data []float64
	if useShm {
		seg, err := shm.Create(total * voxels * 8)
		if err != nil {
			return nil, fmt.Errorf("Concat: failed to create shared memory region: %w", err)
		}
		base, err := seg.Attach()
		if err != nil {
			seg.Destroy()
			return nil, fmt.Errorf("Concat: failed to attach shared memory region: %w", err)
		}

		s.seg, s.base = seg, base
		data = unsafe.Slice((*float64)(base), total*voxels)
		log.WithField("shm_id", seg.Id).Debug("Signal backed by shared memory")
	} else {
		data = make([]float64, total*voxels)
	}

	s.Signal = mat64.NewDense(total, voxels, data)

	row := 0
	for _, m := range parts {
		rows, _ := m.Dims()
		for i := 0; i < rows; i++ {
			copy(s.Signal.RawRowView(row), m.RawRowView(i))
			row++
		}
	}

	return s, nil
}

// Offset returns the first concatenated row of session (1-based)
func (s *Sessions) Offset(session int) int {
	off := 0
	for i := 0; i < session-1 && i < len(s.Counts); i++ {
		off += s.Counts[i]
	}
	return off
}

// SessionOf returns the 1-based session of a concatenated row
func (s *Sessions) SessionOf(row int) int {
	for i, n := range s.Counts {
		if row < n {
			return i + 1
		}
		row -= n
	}
	return 0
}

// Close releases the shared memory backing, if any. Signal must not be used afterwards.
func (s *Sessions) Close() error {
	if s.seg == nil {
		return nil
	}

	s.Signal = nil
	if err := s.seg.Detach(s.base); err != nil {
		return fmt.Errorf("failed to detach shared memory region: %w", err)
	}
	if err := s.seg.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy shared memory region: %w", err)
	}
	s.seg, s.base = nil, nil

	return nil
}
