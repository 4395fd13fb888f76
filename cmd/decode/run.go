package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/align"
	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/calc"
	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/crossval"
	"github.com/KyungWonPark/Decoding/internal/logger"
	"github.com/KyungWonPark/Decoding/internal/metrics"
	"github.com/KyungWonPark/Decoding/internal/registry"
	"github.com/KyungWonPark/Decoding/internal/report"
	"github.com/KyungWonPark/Decoding/internal/signal"
	"github.com/KyungWonPark/Decoding/internal/trial"
)

// decode runs one participant end to end and returns the written files. Nothing is written unless every scope succeeds.
func decode(ctx context.Context, cfg config.Config, corrections []config.Correction) ([]string, error) {
	started := time.Now()
	sub := cfg.Decoding.Participant
	entry := logger.Participant(sub)
	layout := bids.NewLayout(cfg.Paths.BaseDir, cfg.Paths.Participants, cfg.Paths.OutDir)

	participant, err := bids.LookupParticipant(layout.Participants, sub)
	if err != nil {
		return nil, err
	}

	set, err := alignedTrials(cfg, layout, entry)
	if err != nil {
		return nil, err
	}
	metrics.SetTrials(sub, set.Len())

	opts := crossval.FromConfig(&cfg)
	opts.Pipe = calc.Init(0)
	orch, err := crossval.New(opts, entry)
	if err != nil {
		return nil, err
	}

	results, err := orch.Run(ctx, set)
	if err != nil {
		return nil, err
	}

	meta := report.Meta{Config: cfg, Participant: participant}
	tables := make([]*report.Tables, len(results))
	stems := make([]string, len(results))
	var warnings []string
	for i, res := range results {
		tables[i] = report.Assemble(meta, res)
		stems[i] = tables[i].Stem
		metrics.ObserveScope(sub, stems[i], res)
		for _, run := range res.Runs {
			for _, w := range run.Warnings {
				warnings = append(warnings, fmt.Sprintf("%s: %s", stems[i], w))
			}
		}
	}

	dir := layout.ResultDir(cfg.Signal.Modality, sub, cfg.Decoding.Buffering)
	written, err := report.WriteAll(dir, tables)
	if err != nil {
		return written, err
	}

	manifest := report.Manifest{
		RunID:       uuid.New().String(),
		Participant: sub,
		Started:     started,
		Finished:    time.Now(),
		Seed:        orch.Seed(),
		Config:      cfg,
		Corrections: corrections,
		Warnings:    warnings,
		Outputs:     written,
	}
	manifestPath := filepath.Join(dir, report.ManifestName(meta))
	if err := report.WriteManifest(manifestPath, manifest); err != nil {
		return written, err
	}
	written = append(written, manifestPath)

	if cfg.Paths.Registry != "" {
		reg := registry.New(cfg.Paths.Registry)
		if err := reg.Init(ctx); err != nil {
			return written, fmt.Errorf("registry: %w", err)
		}
		defer reg.Close()

		run := registry.Run{
			ID:          manifest.RunID,
			Participant: sub,
			Started:     manifest.Started,
			Finished:    manifest.Finished,
			Seed:        manifest.Seed,
			Manifest:    manifestPath,
		}
		if err := reg.Record(ctx, run, stems, results); err != nil {
			return written, fmt.Errorf("registry: %w", err)
		}
	}

	entry.WithFields(log.Fields{
		"run_id": manifest.RunID,
		"files":  len(written),
		"dir":    dir,
	}).Info("Decoding output written")

	return written, nil
}

// alignedTrials loads both sessions, aligns them with the behavioral logs and assigns the requested folds
func alignedTrials(cfg config.Config, layout bids.Layout, entry *log.Entry) (*trial.Set, error) {
	sub := cfg.Decoding.Participant
	workers := cfg.Decoding.Workers

	paths := make([]string, len(bids.Sessions))
	logs := make([][]bids.LogRow, len(bids.Sessions))
	columns := bids.LabelColumns(cfg.Decoding.EventFile, cfg.Decoding.LabelColumn)
	for i, ses := range bids.Sessions {
		paths[i] = layout.SignalFile(cfg.Signal.Modality, sub, ses, cfg.Signal.MaskIndex)

		rows, err := bids.ReadEventLog(layout.EventLog(sub, ses, cfg.Decoding.EventFile), columns)
		if err != nil {
			return nil, err
		}
		logs[i] = rows
	}

	sessions, err := signal.Load(paths, signal.Options{
		PullExtremes: cfg.Signal.PullExtremes,
		ExtStdThres:  cfg.Signal.ExtStdThres,
		Standardize:  cfg.Signal.Standardize == "zscore",
		SharedMemory: cfg.Signal.SharedMemory,
		Workers:      workers,
	})
	if err != nil {
		return nil, err
	}
	defer sessions.Close()

	if err := align.CheckConstant(sessions.Signal, workers); err != nil {
		return nil, err
	}

	set, err := align.Align(sessions, logs, align.Options{
		Lag:     cfg.Signal.Lag,
		NBins:   cfg.Decoding.NBins,
		Workers: workers,
	})
	if err != nil {
		return nil, err
	}

	align.AssignSubFolds(set, cfg.Decoding.NFoldsWithin)
	if cfg.Decoding.Reorganize {
		align.Reorganize(set, cfg.Decoding.Buffering)
	}

	entry.WithFields(log.Fields{
		"trials":   set.Len(),
		"voxels":   set.Voxels(),
		"sessions": sessions.Counts,
	}).Info("Trials aligned")

	return set, nil
}
