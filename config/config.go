// Package config - YAML configuration for the detection pipeline.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/onnx"
	"github.com/nvr-ai/go-detect/models/catalog"
	"github.com/nvr-ai/go-detect/models/model"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// Config is the full pipeline configuration.
type Config struct {
	Model       ModelConfig        `yaml:"model"`
	Backend     BackendConfig      `yaml:"backend"`
	Postprocess postprocess.Config `yaml:"postprocess"`
	// Workers bounds per-class suppression goroutines. 0 or 1 is sequential.
	Workers int `yaml:"workers"`
	// Labels overrides the class names file of the model.
	Labels string `yaml:"labels"`
	// Server configures the serve command.
	Server ServerConfig `yaml:"server"`
}

// ModelConfig selects the network and its files.
type ModelConfig struct {
	Name      model.Name      `yaml:"name"`
	Variant   string          `yaml:"variant"`
	Dataset   catalog.Dataset `yaml:"dataset"`
	Folder    string          `yaml:"folder"`
	Files     model.Files     `yaml:"files"`
	InputSize int             `yaml:"input_size"`
}

// BackendConfig selects the inference runtime.
type BackendConfig struct {
	// Type is the runtime. Empty picks the model's native runtime.
	Type inference.BackendType `yaml:"type"`
	// ONNX configures the onnxruntime backend.
	ONNX onnx.Options `yaml:"onnx"`
	// Target is the OpenCV DNN target, "cpu" or "cuda".
	Target string `yaml:"target"`
}

// ServerConfig configures the HTTP detection service.
type ServerConfig struct {
	// Addr is the listen address.
	Addr  string      `yaml:"addr"`
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// RedisConfig configures the result store. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// TTL is how long results stay retrievable.
	TTL time.Duration `yaml:"ttl"`
}

// KafkaConfig configures the detection event publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default values for the serve command.
const (
	DefaultServerAddr = ":8080"
	DefaultResultTTL  = 3 * time.Minute
	DefaultKafkaTopic = "detections"
)

// Default returns a YOLOv3 COCO configuration with the stock thresholds.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Name:    model.ModelNameYOLOv3,
			Dataset: catalog.DatasetCOCO,
		},
		Postprocess: postprocess.DefaultConfig(),
		Server: ServerConfig{
			Addr:  DefaultServerAddr,
			Redis: RedisConfig{TTL: DefaultResultTTL},
			Kafka: KafkaConfig{Topic: DefaultKafkaTopic},
		},
	}
}

// MustNew loads a configuration file and panics on error.
func MustNew(path string) Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads and validates a configuration file. Fields absent from the
// file keep their Default values.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - Config: The configuration.
//   - error: An error if the file cannot be read, has unknown fields or is invalid.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "opening config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration. See Load.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "decoding yaml")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var err error
	err = multierr.Append(err, c.Postprocess.Validate())

	switch c.Model.Name {
	case model.ModelNameYOLOv3, model.ModelNameYOLOv8:
	default:
		err = multierr.Append(err, errors.Errorf("model.name: unsupported model %q", c.Model.Name))
	}

	switch c.Backend.Type {
	case "", inference.BackendONNX, inference.BackendOpenCV:
	default:
		err = multierr.Append(err, errors.Errorf("backend.type: unsupported backend %q", c.Backend.Type))
	}

	if c.Model.InputSize < 0 {
		err = multierr.Append(err, errors.Errorf("model.input_size: must not be negative, got %d", c.Model.InputSize))
	}
	if c.Workers < 0 {
		err = multierr.Append(err, errors.Errorf("workers: must not be negative, got %d", c.Workers))
	}
	if c.Server.Redis.TTL < 0 {
		err = multierr.Append(err, errors.Errorf("server.redis.ttl: must not be negative, got %s", c.Server.Redis.TTL))
	}
	if len(c.Server.Kafka.Brokers) > 0 && c.Server.Kafka.Topic == "" {
		err = multierr.Append(err, errors.New("server.kafka.topic: required when brokers are set"))
	}
	return err
}

// BackendType returns the configured runtime, defaulting to OpenCV for
// darknet models and onnxruntime otherwise.
func (c Config) BackendType() inference.BackendType {
	if c.Backend.Type != "" {
		return c.Backend.Type
	}
	if c.Model.Name == model.ModelNameYOLOv3 {
		return inference.BackendOpenCV
	}
	return inference.BackendONNX
}

// ModelArgs converts the configuration to model arguments.
//
// Arguments:
//   - logger: The logger handed to the post-processing pipeline.
//   - timer: The stage timer, may be nil.
//
// Returns:
//   - model.NewModelArgs: The arguments for models.NewModel.
func (c Config) ModelArgs(logger *zap.Logger, timer *profiler.StageTimer) model.NewModelArgs {
	files := c.Model.Files
	if c.Labels != "" {
		files.Labels = c.Labels
	}
	return model.NewModelArgs{
		Name:        c.Model.Name,
		Variant:     c.Model.Variant,
		Dataset:     c.Model.Dataset,
		Folder:      c.Model.Folder,
		Files:       files,
		InputSize:   c.Model.InputSize,
		Postprocess: c.Postprocess,
		NumWorkers:  c.Workers,
		Logger:      logger,
		Timer:       timer,
	}
}
