package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	BaseDirName      = ".config/quotio"
	WorkerConfigName = "config.yaml"
	WorkerBinaryName = "cli-proxy-api-plus"
	StateFileName    = "proxy.json"
	EventsDBName     = "events.db"
	LogFileName      = "quotio.log"

	// DefaultPort is the port the worker listens on when nothing is configured.
	DefaultPort = 8317

	// DefaultReleaseEndpoint serves the latest worker release metadata.
	DefaultReleaseEndpoint = "https://api.github.com/repos/router-for-me/CLIProxyAPIPlus/releases/latest"
)

var Config *viper.Viper

var globalFlagsToConfigKey = map[string]string{
	"base-path": "base_path",
	"verbose":   "verbose",
}

// BaseDir is the directory holding the worker binary, its config, auth
// tokens, logs and quotio's own state. Everything lives under one root so a
// user can wipe the installation by removing a single directory.
func BaseDir() string {
	return Config.GetString("base_path")
}

func WorkerConfigPath() string {
	return filepath.Join(BaseDir(), WorkerConfigName)
}

func BinDir() string {
	return filepath.Join(BaseDir(), "bin")
}

func WorkerBinaryPath() string {
	return filepath.Join(BinDir(), WorkerBinaryName)
}

// AuthDir holds the OAuth token files the worker writes during auth flows.
func AuthDir() string {
	return filepath.Join(BaseDir(), "auths")
}

func StateFilePath() string {
	return filepath.Join(BaseDir(), StateFileName)
}

func EventsDBPath() string {
	return filepath.Join(BaseDir(), EventsDBName)
}

func LogFilePath() string {
	return filepath.Join(BaseDir(), "logs", LogFileName)
}

// WorkerLogPath receives worker output when the worker is started detached
// from a one-shot CLI run.
func WorkerLogPath() string {
	return filepath.Join(BaseDir(), "logs", "worker.log")
}

func GetPort() int {
	return Config.GetInt("port")
}

// SetPort persists a new worker port in quotio's own settings. The worker
// config file is synchronized separately by the manager.
func SetPort(port int) error {
	if err := ValidatePort(port); err != nil {
		return err
	}
	Config.Set("port", port)
	return Config.WriteConfig()
}

// ValidatePort rejects ports outside the 16-bit range. Zero is rejected too:
// the worker binds a fixed port, it never asks the kernel for one.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}
	return nil
}

func GetReleaseEndpoint() string {
	return Config.GetString("release.endpoint")
}

func GetManagerListenAddr() string {
	return Config.GetString("manager.listen")
}

func GetNotificationsEnabled() bool {
	return Config.GetBool("notifications.enabled")
}

func InitializeConfig(cmd *cobra.Command) ([]string, error) {
	Config = viper.New()

	// Set base path from user input
	basePath, err := cmd.Root().PersistentFlags().GetString("base-path")
	if err != nil {
		panic("Unable to determine base path")
	}
	Config.Set("base_path", basePath)
	Config.AddConfigPath(basePath)

	// Set config name
	Config.SetConfigName("quotio")
	Config.SetConfigType("toml")

	// Set defaults
	Config.SetDefault("verbose", 0)
	Config.SetDefault("port", DefaultPort)
	Config.SetDefault("release.endpoint", DefaultReleaseEndpoint)
	Config.SetDefault("manager.listen", "127.0.0.1:8417")
	Config.SetDefault("notifications.enabled", true)

	// Setup env reading
	Config.SetEnvPrefix("quotio")

	// Load config file
	if err := Config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found - create base path and write config with defaults
			err := os.MkdirAll(basePath, 0o755)
			if err != nil {
				panic(err)
			}
			Config.SafeWriteConfig()
		} else {
			// Config file was found but another error occurred
			panic(err)
		}
	}

	// In order to get environment variables mapped into config sections, we need to replace . with _
	Config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Config.AutomaticEnv() // read in environment variables that match

	// Bind the current command's flags to viper
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			// Is this a global flag
			configKey, ok := globalFlagsToConfigKey[f.Name]
			if !ok {
				return
			}

			// Apply the viper config value to the flag when the flag is not set and viper has a value
			if !f.Changed && Config.IsSet(configKey) {
				cmd.Flags().Set(f.Name, fmt.Sprintf("%v", Config.Get(configKey)))
			} else {
				Config.Set(configKey, fmt.Sprintf("%v", f.Value))
			}
		})
	}

	return []string{}, nil
}
