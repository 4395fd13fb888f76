package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codegangsta/cli"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/config"
	"github.com/KyungWonPark/Decoding/internal/logger"
	"github.com/KyungWonPark/Decoding/internal/metrics"
)

func main() {
	app := cli.NewApp()
	app.Name = "decode"
	app.Usage = "Leave-one-fold-out decoding of one DAMSON participant"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
		cli.StringFlag{Name: "participant, p", Usage: "participant id, e.g. sub-01"},
		cli.StringFlag{Name: "event-file", Usage: "behavioral event file (walk-fwd, turn, ...)"},
		cli.StringFlag{Name: "classifier", Usage: "svm or logreg"},
		cli.StringFlag{Name: "balancing", Usage: "none, downsample, upsample or SMOTE"},
		cli.StringFlag{Name: "x-val-split", Usage: "fold, session or sub_fold"},
		cli.BoolFlag{Name: "buffering", Usage: "train each buffer on its own"},
		cli.BoolFlag{Name: "testset-buffer", Usage: "restrict testing to the training buffer"},
		cli.BoolFlag{Name: "within-session", Usage: "decode each session on its own"},
		cli.BoolFlag{Name: "reorganize", Usage: "reassign folds by halves of every session"},
		cli.IntFlag{Name: "n-perm", Usage: "run this many label permutations instead of the real labels"},
		cli.Int64Flag{Name: "seed", Usage: "seed of every random stream, 0 draws one"},
		cli.IntFlag{Name: "workers", Usage: "permutations run in parallel"},
		cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
	}
	app.Action = func(c *cli.Context) error {
		if err := run(c); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// applyFlags overrides configuration keys with the flags given on the command line
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("participant") {
		cfg.Decoding.Participant = c.String("participant")
	}
	if c.IsSet("event-file") {
		cfg.Decoding.EventFile = c.String("event-file")
	}
	if c.IsSet("classifier") {
		cfg.Decoding.Classifier = c.String("classifier")
	}
	if c.IsSet("balancing") {
		cfg.Decoding.BalancingOption = c.String("balancing")
	}
	if c.IsSet("x-val-split") {
		cfg.Decoding.XValSplit = c.String("x-val-split")
	}
	if c.IsSet("buffering") {
		cfg.Decoding.Buffering = c.Bool("buffering")
	}
	if c.IsSet("testset-buffer") {
		cfg.Decoding.TestsetBuffer = c.Bool("testset-buffer")
	}
	if c.IsSet("within-session") {
		cfg.Decoding.WithinSession = c.Bool("within-session")
	}
	if c.IsSet("reorganize") {
		cfg.Decoding.Reorganize = c.Bool("reorganize")
	}
	if c.IsSet("n-perm") {
		cfg.Decoding.NPerm = c.Int("n-perm")
		cfg.Decoding.Perm = cfg.Decoding.NPerm > 0
	}
	if c.IsSet("seed") {
		cfg.Decoding.Seed = c.Int64("seed")
	}
	if c.IsSet("workers") {
		cfg.Decoding.Workers = c.Int("workers")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
}

func run(c *cli.Context) error {
	loaded, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, loaded)

	if err := logger.Init(loaded.Logging.Level, loaded.Logging.Format); err != nil {
		return err
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg, corrections := loaded.Resolve()
	for _, corr := range corrections {
		log.WithFields(log.Fields{
			"key":  corr.Key,
			"from": corr.From,
			"to":   corr.To,
		}).Warn(corr.Reason)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	_, err = decode(ctx, cfg, corrections)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveRun(time.Since(start), outcome)

	if cfg.Paths.Metrics != "" {
		if werr := metrics.WriteTextfile(cfg.Paths.Metrics, reg); werr != nil {
			log.WithError(werr).Warn("Failed to write metrics textfile")
		}
	}

	return err
}
