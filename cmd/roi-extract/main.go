package main

import (
	"os"
	"path/filepath"

	"github.com/codegangsta/cli"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/bids"
	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/io"
	"github.com/KyungWonPark/Decoding/internal/logger"
	"github.com/KyungWonPark/Decoding/internal/roi"
)

func main() {
	app := cli.NewApp()
	app.Name = "roi-extract"
	app.Usage = "Extract region-of-interest signal matrices from preprocessed BOLD images"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
		cli.StringFlag{Name: "participant, p", Usage: "participant id, e.g. sub-01"},
		cli.StringFlag{Name: "mask-seg", Usage: "segmentation the mask labels refer to"},
		cli.IntSliceFlag{Name: "mask-index, m", Value: &cli.IntSlice{}, Usage: "segmentation label to keep. Can be given more than once."},
		cli.IntFlag{Name: "workers", Usage: "time points read in parallel, 0 uses every CPU"},
	}
	app.Action = func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if c.IsSet("participant") {
			cfg.Decoding.Participant = c.String("participant")
		}
		if c.IsSet("mask-seg") {
			cfg.Signal.MaskSeg = c.String("mask-seg")
		}
		if c.IsSet("mask-index") {
			cfg.Signal.MaskIndex = c.IntSlice("mask-index")
		}
		if c.IsSet("workers") {
			cfg.Decoding.Workers = c.Int("workers")
		}

		if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		if err := cfg.Validate(); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		resolved, _ := cfg.Resolve()

		if _, err := extract(resolved, roi.OpenNifti, resolved.Decoding.Workers); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// extract builds the session-intersection mask and writes the voxel list plus one signal matrix per session
func extract(cfg config.Config, open func(path string) (roi.Volume, error), workers int) ([]string, error) {
	sub := cfg.Decoding.Participant
	seg := cfg.Signal.MaskSeg
	layout := bids.NewLayout(cfg.Paths.BaseDir, cfg.Paths.Participants, cfg.Paths.OutDir)
	entry := logger.Participant(sub)

	segs := make([]roi.Volume, len(bids.Sessions))
	for i, ses := range bids.Sessions {
		v, err := open(layout.Segmentation(sub, ses, seg))
		if err != nil {
			return nil, err
		}
		segs[i] = v
	}

	voxels, err := roi.Mask(segs, cfg.Signal.MaskIndex)
	if err != nil {
		return nil, err
	}

	fields := log.Fields{"labels": cfg.Signal.MaskIndex, "voxels": len(voxels)}
	if names, err := roi.LabelNames(layout.SegmentationLabels(seg), cfg.Signal.MaskIndex); err == nil {
		fields["names"] = names
	}
	entry.WithFields(fields).Info("Mask created")

	voxelPath := layout.MaskVoxels(cfg.Signal.Modality, sub, seg, cfg.Signal.MaskIndex)
	if err := os.MkdirAll(filepath.Dir(voxelPath), 0755); err != nil {
		return nil, err
	}
	if err := io.Mat64toNpy(voxelPath, roi.VoxelMatrix(voxels)); err != nil {
		return nil, err
	}
	written := []string{voxelPath}

	for _, ses := range bids.Sessions {
		img, err := open(layout.Bold(sub, ses))
		if err != nil {
			return written, err
		}

		m, err := roi.Extract(img, voxels, workers)
		if err != nil {
			return written, err
		}

		path := layout.SignalFile(cfg.Signal.Modality, sub, ses, cfg.Signal.MaskIndex)
		if err := io.Mat64toNpy(path, m); err != nil {
			return written, err
		}
		written = append(written, path)

		rows, cols := m.Dims()
		entry.WithFields(log.Fields{"session": ses, "samples": rows, "voxels": cols}).Info("Signal extracted")
	}

	return written, nil
}
