package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// AppName is the CLI binary name, also used for the config directory.
const AppName = "praxisctl"

// CfgFile may be set by the --config flag to override the default location.
var CfgFile string

// CLIConfig is the persisted CLI state: the server to talk to and the
// session token from the last login.
type CLIConfig struct {
	ServerEndpoint string `mapstructure:"server_endpoint"`
	AuthToken      string `mapstructure:"auth_token"`
}

// Current holds the loaded configuration after InitConfig.
var Current CLIConfig

func configPath() (string, error) {
	if CfgFile != "" {
		return CfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "config.yaml"), nil
}

// InitConfig loads the CLI configuration. A missing file is not an error;
// the defaults apply until the first Save.
func InitConfig() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("server_endpoint", "http://localhost:8080")

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return fmt.Errorf("error reading CLI config: %w", err)
			}
		}
	}
	return v.Unmarshal(&Current)
}

// Save writes the current configuration back to disk.
func Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.Set("server_endpoint", Current.ServerEndpoint)
	v.Set("auth_token", Current.AuthToken)
	return v.WriteConfig()
}
