package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyp3rd/ewrap"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFileName is the file FileLoader reads when no path is set.
	DefaultFileName = "otlpexport.yaml"
	// DefaultEnvPrefix is the variable prefix EnvLoader uses when none is set.
	DefaultEnvPrefix = "OTLPEXPORT_"
)

// errSkipLoader tells Load that a source had nothing to contribute.
var errSkipLoader = ewrap.New("config loader skipped")

// Loader transforms external sources into configuration maps that are decoded onto Config.
// A loader with nothing to contribute returns an empty map.
type Loader interface {
	Load(ctx context.Context) (map[string]any, error)
}

// LoaderFunc adapts ordinary functions into Loader.
type LoaderFunc func(ctx context.Context) (map[string]any, error)

// Load implements Loader.
func (lf LoaderFunc) Load(ctx context.Context) (map[string]any, error) {
	return lf(ctx)
}

// Load runs loaders in order, each overlaying its fields on DefaultConfig() and the
// loaders before it, then validates the result.
func Load(ctx context.Context, loaders ...Loader) (Config, error) {
	cfg := DefaultConfig()

	for _, loader := range loaders {
		if loader == nil {
			continue
		}

		values, err := loader.Load(ctx)
		if errors.Is(err, errSkipLoader) {
			continue
		}

		if err != nil {
			return Config{}, err
		}

		if len(values) == 0 {
			continue
		}

		err = decodeInto(&cfg, values)
		if err != nil {
			return Config{}, err
		}
	}

	err := Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func decodeInto(target *Config, input map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		Result:           target,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return ewrap.Wrap(err, "create config decoder")
	}

	err = decoder.Decode(input)
	if err != nil {
		return ewrap.Wrap(err, "decode config")
	}

	return nil
}

// FileLoader loads configuration from a YAML file, on disk or in FS when set.
// A missing file contributes nothing.
type FileLoader struct {
	Path string
	FS   fs.FS
}

// Load implements Loader.
func (fl FileLoader) Load(_ context.Context) (map[string]any, error) {
	path := fl.Path
	if path == "" {
		path = DefaultFileName
	}

	var (
		data []byte
		err  error
	)

	if fl.FS != nil {
		data, err = fs.ReadFile(fl.FS, filepath.ToSlash(filepath.Clean(path)))
	} else {
		data, err = os.ReadFile(filepath.Clean(path))
	}

	if errors.Is(err, fs.ErrNotExist) {
		return nil, errSkipLoader
	}

	if err != nil {
		return nil, ewrap.Wrapf(err, "read config file %q", path)
	}

	var out map[string]any

	err = yaml.Unmarshal(data, &out)
	if err != nil {
		return nil, ewrap.Wrapf(err, "unmarshal yaml %q", path)
	}

	return out, nil
}
