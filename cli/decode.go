package cli

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

const (
	layoutDefault = "default"
	layoutDarknet = "darknet"
)

// RawTensor is one row-major output tensor.
type RawTensor struct {
	Cols int       `json:"cols"`
	Data []float32 `json:"data"`
}

// RawOutput is the input of the decode command: the raw network output for
// one image.
type RawOutput struct {
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Classes []string    `json:"classes,omitempty"`
	Tensors []RawTensor `json:"tensors"`
}

// DecodeAction post-processes raw tensors read from --raw and prints the
// detections.
func (a *actions) DecodeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	//nolint:errcheck
	defer logger.Sync()

	raw, err := readRaw(c.String(decodeFlagRaw))
	if err != nil {
		return err
	}

	if c.IsSet(decodeFlagConfidence) {
		cfg.Postprocess.ConfidenceThreshold = float32(c.Float64(decodeFlagConfidence))
	}
	if c.IsSet(decodeFlagNMS) {
		cfg.Postprocess.NMSThreshold = float32(c.Float64(decodeFlagNMS))
	}

	layout, err := parseLayout(c.String(decodeFlagLayout))
	if err != nil {
		return err
	}
	classes, err := decodeClasses(c, cfg, raw)
	if err != nil {
		return err
	}

	tensors := make([]postprocess.Tensor, len(raw.Tensors))
	for i, rt := range raw.Tensors {
		if tensors[i], err = postprocess.NewTensor(rt.Data, rt.Cols); err != nil {
			return errors.Wrapf(err, "tensor %d", i)
		}
	}

	processor, err := postprocess.NewProcessor(postprocess.ProcessorOptions{
		Config:     cfg.Postprocess,
		Classes:    classes,
		Layout:     layout,
		NumWorkers: cfg.Workers,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	detections, err := processor.Process(tensors, raw.Width, raw.Height)
	if err != nil {
		return err
	}
	return printJSON(c, detections)
}

func readRaw(path string) (RawOutput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RawOutput{}, errors.Wrap(err, "reading raw output")
	}
	var raw RawOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawOutput{}, errors.Wrapf(err, "parsing %s", path)
	}
	return raw, nil
}

func parseLayout(name string) (postprocess.Layout, error) {
	switch name {
	case "", layoutDefault:
		return postprocess.LayoutDefault, nil
	case layoutDarknet:
		return postprocess.LayoutDarknet, nil
	default:
		return postprocess.Layout{}, errors.Errorf("unknown layout %q", name)
	}
}

// decodeClasses picks the catalog from the raw file, --labels, the
// configured labels file or the configured dataset, in that order.
func decodeClasses(c *cli.Context, cfg config.Config, raw RawOutput) (*catalog.ClassCatalog, error) {
	if len(raw.Classes) > 0 {
		return catalog.New(raw.Classes...)
	}
	if path := c.String(decodeFlagLabels); path != "" {
		return catalog.LoadFile(path)
	}
	if cfg.Labels != "" {
		return catalog.LoadFile(cfg.Labels)
	}
	return catalog.ForDataset(cfg.Model.Dataset)
}
