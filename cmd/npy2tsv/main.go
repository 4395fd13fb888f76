package main

import (
	"os"
	"strings"

	"github.com/codegangsta/cli"
	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/Decoding/internal/io"
)

func main() {
	app := cli.NewApp()
	app.Name = "npy2tsv"
	app.Usage = "Convert signal or voxel .npy matrices to tab separated text"
	app.ArgsUsage = "<file.npy> [file.npy ...]"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "out, o", Usage: "output file, only valid with a single input"},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cli.NewExitError("no input file", 1)
		}
		if c.IsSet("out") && c.NArg() > 1 {
			return cli.NewExitError("--out needs exactly one input file", 1)
		}

		for _, fileName := range c.Args() {
			out := strings.TrimSuffix(fileName, ".npy") + ".tsv"
			if c.IsSet("out") {
				out = c.String("out")
			}
			if err := convert(fileName, out); err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func convert(in, out string) error {
	matrix, err := io.NpytoMat64(in)
	if err != nil {
		return err
	}
	rows, cols := matrix.Dims()
	log.WithFields(log.Fields{"file": in, "rows": rows, "cols": cols}).Info("Reading npy file complete")

	return io.Mat64toTSV(out, matrix)
}
