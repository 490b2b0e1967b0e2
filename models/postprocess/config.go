package postprocess

import (
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

const (
	// DefaultConfidenceThreshold is the minimum class score kept by default.
	DefaultConfidenceThreshold float32 = 0.5
	// DefaultNMSThreshold is the IoU above which a lower scoring box is suppressed.
	DefaultNMSThreshold float32 = 0.4

	// ParamConfidence is the parameter map key for the confidence threshold.
	ParamConfidence = "confidence"
	// ParamNMSThreshold is the parameter map key for the NMS threshold.
	ParamNMSThreshold = "nmsThreshold"
)

// Config holds the thresholds used by decoding and suppression.
type Config struct {
	// ConfidenceThreshold filters class scores at or below this level.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// NMSThreshold controls the Non-Maximum Suppression IoU threshold.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`
}

// DefaultConfig returns the thresholds the stock YOLOv3 weights are tuned for.
//
// Returns:
//   - Config: {ConfidenceThreshold: 0.5, NMSThreshold: 0.4}
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMSThreshold:        DefaultNMSThreshold,
	}
}

// Validate checks both thresholds lie in [0, 1]. Out of range values are
// rejected, never clamped. Every offending field is reported.
//
// Returns:
//   - error: nil, or one ErrInvalidThreshold per bad field combined with multierr.
func (c Config) Validate() error {
	var err error
	err = multierr.Append(err, validateThreshold("confidence_threshold", c.ConfidenceThreshold))
	err = multierr.Append(err, validateThreshold("nms_threshold", c.NMSThreshold))
	return err
}

func validateThreshold(name string, v float32) error {
	if math32.IsNaN(v) || v < 0 || v > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "%s must be in [0, 1], got %v", name, v)
	}
	return nil
}

// ParamMap renders the config as a string parameter map, the form used by
// host applications that store task parameters as key/value strings.
func (c Config) ParamMap() map[string]string {
	return map[string]string{
		ParamConfidence:   strconv.FormatFloat(float64(c.ConfidenceThreshold), 'f', -1, 32),
		ParamNMSThreshold: strconv.FormatFloat(float64(c.NMSThreshold), 'f', -1, 32),
	}
}

// ConfigFromParamMap parses a parameter map produced by ParamMap.
//
// Arguments:
//   - params: Must contain both the "confidence" and "nmsThreshold" keys.
//
// Returns:
//   - Config: The parsed, validated config.
//   - error: An error if a key is missing, unparsable or out of range.
func ConfigFromParamMap(params map[string]string) (Config, error) {
	var cfg Config

	confidence, err := parseParam(params, ParamConfidence)
	if err != nil {
		return cfg, err
	}
	nms, err := parseParam(params, ParamNMSThreshold)
	if err != nil {
		return cfg, err
	}

	cfg = Config{ConfidenceThreshold: confidence, NMSThreshold: nms}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseParam(params map[string]string, key string) (float32, error) {
	raw, ok := params[key]
	if !ok {
		return 0, errors.Errorf("missing parameter %q", key)
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %q", key)
	}
	return float32(v), nil
}
