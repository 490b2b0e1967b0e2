package cli

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/config"
)

// loadConfig reads --config, falling back to the defaults.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String(flagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds a production logger, or a development one with --debug.
func newLogger(c *cli.Context) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Bool(flagDebug) {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building logger")
	}
	return logger, nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "writing output")
}
