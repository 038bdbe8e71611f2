package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kkyr/fig"
)

const EnvPrefix = "OPENCLOUD"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix OPENCLOUD_.
// Params from the config should be in uppercase separated with _.
// Without a config file only env variables and default tags are used.
func LoadConfig(config any, path string) error {
	dirs := []string{path}
	file := "config.yaml"
	if path == "" {
		dirs = append(dirs, ".", "configs", "../../configs")
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".opencloud"))
		}
	} else if filepath.Ext(path) != "" {
		dirs, file = []string{filepath.Dir(path)}, filepath.Base(path)
	}
	err := fig.Load(config, fig.File(file), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if errors.Is(err, fig.ErrFileNotFound) && path == "" {
		return LoadConfigEnv(config)
	}
	return err
}

func LoadConfigEnv(config any) error {
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
