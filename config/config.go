/*Package config provides the configuration machinery a backend may use
to load its own configuration value. The value itself stays opaque to the
controller core; this package only supplies the loading and decoding
mechanism.

AxisConfig seeds state.ResetState with a non-default axis layout; it is
the one piece of configuration the core itself consumes, since axis
labels and homability are part of the state vector's own invariants.
*/
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mitchellh/mapstructure"
	yamlv2 "gopkg.in/yaml.v2"
)

// AxisConfig describes the axis layout to seed state.ResetState with.
type AxisConfig struct {
	// Labels is the ordered set of axis names, e.g. ["x","y","z","a"].
	Labels []string `koanf:"labels" yaml:"labels"`

	// Homable marks which axes support homing, parallel to Labels. If
	// shorter than Labels, missing trailing entries default to true.
	Homable []bool `koanf:"homable" yaml:"homable"`

	// CoordSystems is the number of work coordinate system slots to
	// allocate (G54-style offset tables); must be >= 1.
	CoordSystems int `koanf:"coord_systems" yaml:"coord_systems"`
}

// EnvPrefix is the prefix koanf's environment provider strips before
// matching keys.
const EnvPrefix = "CNCCTL_"

// Load layers a YAML file (optional; pass "" to skip) with environment
// variable overrides (CNCCTL_LABELS, CNCCTL_COORD_SYSTEMS, ...). It
// returns the zero AxisConfig (meaning: caller should fall back to
// state.DefaultAxisLabels) when no file is given and no relevant
// environment variables are set.
func Load(yamlPath string) (AxisConfig, error) {
	k := koanf.New(".")

	if yamlPath != "" {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			return AxisConfig{}, err
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return AxisConfig{}, err
	}

	var cfg AxisConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AxisConfig{}, err
	}
	return cfg, nil
}

// LoadBackendArgsYAML reads a YAML file straight into a free-form
// map[string]interface{}, for a backend's own on-disk argument file
// (distinct from the layered AxisConfig Load above), when a deployment
// prefers one YAML file per device over environment variables.
func LoadBackendArgsYAML(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	var args map[string]interface{}
	if err := yamlv2.NewDecoder(f).Decode(&args); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return args, nil
}

// DumpYAML renders cfg back to YAML, for diagnostic logging of the axis
// layout a controller was constructed with.
func DumpYAML(cfg AxisConfig) (string, error) {
	b, err := yamlv2.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeBackendArgs decodes a free-form map of backend arguments into a
// typed backend configuration struct. Duration-typed fields accept
// "5ms"-style strings, so delays read naturally from YAML.
func DecodeBackendArgs(args map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "arg",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
