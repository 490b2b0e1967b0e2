// Package cli contains the detect command line interface.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models/model"
)

const (
	// Global flags.
	flagConfig = "config"
	flagDebug  = "debug"

	// Run flags.
	runFlagImage = "image"
	runFlagDir   = "dir"

	// Serve flags.
	serveFlagAddr = "addr"

	// Decode flags.
	decodeFlagRaw        = "raw"
	decodeFlagLabels     = "labels"
	decodeFlagLayout     = "layout"
	decodeFlagConfidence = "confidence"
	decodeFlagNMS        = "nms"
)

// BackendFactory opens an inference backend for a model.
type BackendFactory func(cfg config.Config, m model.Options, logger *zap.Logger) (inference.Backend, error)

type actions struct {
	backends map[inference.BackendType]BackendFactory
}

// NewApp returns the detect app with Writer set to out and ErrWriter set to
// errOut. Only the backends present in the map can be used by the run command.
func NewApp(out, errOut io.Writer, backends map[inference.BackendType]BackendFactory) *cli.App {
	a := &actions{backends: backends}

	return &cli.App{
		Name:            "detect",
		Usage:           "run YOLO object detection and post-processing",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "detect objects in images",
				UsageText: "detect [--config FILE] run --image FILE [--image FILE...] [--dir DIR]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  runFlagImage,
						Usage: "JPEG, PNG or WebP `FILE` to run detection on",
					},
					&cli.StringFlag{
						Name:  runFlagDir,
						Usage: "`DIR`ectory of frames to run detection on",
					},
				},
				Action: a.RunAction,
			},
			{
				Name:      "serve",
				Usage:     "serve detection over HTTP",
				UsageText: "detect [--config FILE] serve [--addr HOST:PORT]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  serveFlagAddr,
						Usage: "listen address, overrides server.addr",
					},
				},
				Action: a.ServeAction,
			},
			{
				Name:      "decode",
				Usage:     "post-process raw output tensors saved as JSON",
				UsageText: "detect [--config FILE] decode --raw FILE [--labels FILE] [--layout default|darknet]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     decodeFlagRaw,
						Required: true,
						Usage:    "JSON `FILE` holding the image size and the raw tensors",
					},
					&cli.StringFlag{
						Name:  decodeFlagLabels,
						Usage: "class names `FILE`, one per line",
					},
					&cli.StringFlag{
						Name:  decodeFlagLayout,
						Value: layoutDefault,
						Usage: "row layout, default (scores at column 4) or darknet (scores at column 5)",
					},
					&cli.Float64Flag{
						Name:  decodeFlagConfidence,
						Usage: "override the confidence threshold",
					},
					&cli.Float64Flag{
						Name:  decodeFlagNMS,
						Usage: "override the NMS IoU threshold",
					},
				},
				Action: a.DecodeAction,
			},
		},
	}
}
