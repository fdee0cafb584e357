package common

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	ConfigPathEnv = "CONFIG_PATH"
	configTag     = "key"
)

//go:embed config.default.yaml
var defaultConfig []byte

// ConfigManager loads the embedded defaults and an optional override file
type ConfigManager[T any] struct {
	kf *koanf.Koanf
}

func NewConfigManager[T any]() (*ConfigManager[T], error) {
	return NewConfigManagerFromPath[T](os.Getenv(ConfigPathEnv))
}

// NewConfigManagerFromPath loads defaults, then merges the file at path (if any)
func NewConfigManagerFromPath[T any](path string) (*ConfigManager[T], error) {
	cm := &ConfigManager[T]{kf: koanf.New(".")}

	if err := cm.kf.Load(rawbytes.Provider(defaultConfig), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path != "" {
		if err := cm.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return cm, nil
}

// LoadFile merges a yaml or json file over the current values
func (cm *ConfigManager[T]) LoadFile(path string) error {
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}

	if err := cm.kf.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

// LoadBytes merges raw yaml over the current values
func (cm *ConfigManager[T]) LoadBytes(b []byte) error {
	if err := cm.kf.Load(rawbytes.Provider(b), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config bytes: %w", err)
	}
	return nil
}

// GetConfig decodes the merged values into T
func (cm *ConfigManager[T]) GetConfig() T {
	var config T
	if err := cm.Unmarshal(&config); err != nil {
		return config
	}
	return config
}

// Unmarshal decodes the merged values into out
func (cm *ConfigManager[T]) Unmarshal(out *T) error {
	return cm.kf.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: configTag,
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           out,
			TagName:          configTag,
			WeaklyTypedInput: true,
		},
	})
}
