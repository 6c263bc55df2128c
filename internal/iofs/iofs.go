package iofs

import (
	_ "embed"
	"os"

	"github.com/gnames/gncity/pkg/config"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var ConfigYAML string

// EnsureDirs creates configuration, cache, staging and log directories.
func EnsureDirs(homeDir string) error {
	dirs := []string{
		config.ConfigDir(homeDir),
		config.CacheDir(homeDir),
		config.StagingDir(homeDir),
		config.LogDir(homeDir),
	}
	for _, v := range dirs {
		if err := touchDir(v); err != nil {
			return err
		}
	}
	return nil
}

func touchDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return CreateDirError(dir, err)
	}

	return nil
}

// EnsureConfigFile writes the default config.yaml unless the file
// already exists.
func EnsureConfigFile(homeDir string) error {
	configPath := config.ConfigFilePath(homeDir)

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.WriteFile(configPath, []byte(ConfigYAML), 0644); err != nil {
		return CopyFileError(configPath, err)
	}

	return nil
}

// LoadConfigFile decodes a config.yaml file. Only persistent fields are
// read, runtime fields keep their zero values.
func LoadConfigFile(path string) (*config.Config, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, ReadFileError(path, err)
	}

	var res config.Config
	if err = yaml.Unmarshal(bs, &res); err != nil {
		return nil, ReadFileError(path, err)
	}
	return &res, nil
}

// ConfigToYAML renders the persistent part of a configuration in the
// format of config.yaml.
func ConfigToYAML(cfg *config.Config) (string, error) {
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}
