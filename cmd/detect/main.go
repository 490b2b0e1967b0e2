// Package main is the detect command.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/cli"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/onnx"
	"github.com/nvr-ai/go-detect/inference/opencv"
	"github.com/nvr-ai/go-detect/models/model"
)

var backends = map[inference.BackendType]cli.BackendFactory{
	inference.BackendONNX: func(cfg config.Config, m model.Options, logger *zap.Logger) (inference.Backend, error) {
		b, err := onnx.NewBackend(cfg.Backend.ONNX, m, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	},
	inference.BackendOpenCV: func(cfg config.Config, m model.Options, logger *zap.Logger) (inference.Backend, error) {
		b, err := opencv.NewBackend(opencv.Options{Target: opencv.Target(cfg.Backend.Target)}, m, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(os.Stdout, os.Stderr, backends)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
