package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Serendipathy/cv-generation-system/pkg/logging"
)

const (
	// EnvPrefix prefixes environment overrides: CVGEN_DEFAULTS_PROFILE overrides defaults.profile.
	EnvPrefix = "CVGEN"

	configDirName  = ".cv-generator"
	configFileName = "config.json"

	defaultOutputDir    = "./output"
	defaultProfile      = "balanced"
	defaultConcurrency  = 4
	defaultProfilesDir  = "profiles"
	defaultTemplatesDir = "templates"
)

// Config represents the application configuration.
type Config struct {
	Name           string        `json:"name" mapstructure:"name"`
	MasterLocation string        `json:"master_location" mapstructure:"master_location"`
	SchemaLocation string        `json:"schema_location,omitempty" mapstructure:"schema_location"`
	ProfilesDir    string        `json:"profiles_dir" mapstructure:"profiles_dir"`
	TemplatesDir   string        `json:"templates_dir" mapstructure:"templates_dir"`
	Pandoc         PandocConfig  `json:"pandoc" mapstructure:"pandoc"`
	Defaults       DefaultConfig `json:"defaults" mapstructure:"defaults"`
	Log            LogConfig     `json:"log" mapstructure:"log"`
	Render         RenderConfig  `json:"render" mapstructure:"render"`
}

// PandocConfig holds pandoc-related configuration. Both paths are optional.
type PandocConfig struct {
	TemplatePath string `json:"template_path,omitempty" mapstructure:"template_path"`
	ClassFile    string `json:"class_file,omitempty" mapstructure:"class_file"`
}

// DefaultConfig holds default values for commands.
type DefaultConfig struct {
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
	Profile   string `json:"profile" mapstructure:"profile"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Format string `json:"format" mapstructure:"format"`
}

// RenderConfig tunes batch rendering.
type RenderConfig struct {
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`
}

// DefaultPath returns ~/.cv-generator/config.json.
func DefaultPath() (path string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		err = errors.Wrap(err, "failed to get user home directory")
		return path, err
	}

	path = filepath.Join(homeDir, configDirName, configFileName)
	return path, err
}

func newViper() (v *viper.Viper) {
	v = viper.New()

	// Every key needs a default so AutomaticEnv can override it during Unmarshal.
	v.SetDefault("name", "")
	v.SetDefault("master_location", "")
	v.SetDefault("schema_location", "")
	v.SetDefault("profiles_dir", defaultProfilesDir)
	v.SetDefault("templates_dir", defaultTemplatesDir)
	v.SetDefault("pandoc.template_path", "")
	v.SetDefault("pandoc.class_file", "")
	v.SetDefault("defaults.output_dir", defaultOutputDir)
	v.SetDefault("defaults.profile", defaultProfile)
	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.format", string(logging.FormatText))
	v.SetDefault("render.concurrency", defaultConcurrency)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads configuration from file with environment variable overrides. A .env file in the
// working directory is loaded first. An explicit configPath must exist; when configPath is empty
// and the default file is missing, defaults and environment apply.
func Load(configPath string) (cfg Config, err error) {
	err = loadDotEnv(".env")
	if err != nil {
		return cfg, err
	}

	// Determine config file location
	path := configPath
	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	v := newViper()

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		v.SetConfigFile(path)
		err = v.ReadInConfig()
		if err != nil {
			err = errors.Wrapf(err, "failed to parse config file: %s", path)
			return cfg, err
		}
	case os.IsNotExist(statErr) && configPath == "":
	case os.IsNotExist(statErr):
		err = errors.Errorf("config file not found: %s (run 'cvgen init' to create)", path)
		return cfg, err
	default:
		err = errors.Wrapf(statErr, "failed to read config file: %s", path)
		return cfg, err
	}

	err = v.Unmarshal(&cfg)
	if err != nil {
		err = errors.Wrapf(err, "failed to decode config file: %s", path)
		return cfg, err
	}

	// Validate required fields
	err = cfg.Validate()
	if err != nil {
		err = errors.Wrap(err, "config validation failed")
		return cfg, err
	}

	return cfg, err
}

func loadDotEnv(path string) (err error) {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		return err
	}

	err = godotenv.Load(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to load %s", path)
		return err
	}

	return err
}

// Validate checks the configuration and fills defaults for empty values.
func (c *Config) Validate() (err error) {
	if c.SchemaLocation != "" {
		_, err = os.Stat(c.SchemaLocation)
		if os.IsNotExist(err) {
			err = errors.Errorf("schema file not found: %s", c.SchemaLocation)
			return err
		}
		err = nil
	}

	if c.Render.Concurrency < 0 {
		err = errors.Errorf("render.concurrency must not be negative, got %d", c.Render.Concurrency)
		return err
	}

	_, err = logging.GetLevel(c.Log.Level)
	if err != nil {
		return err
	}

	_, err = logging.GetFormat(c.Log.Format)
	if err != nil {
		return err
	}

	// Set defaults if not specified
	if c.Defaults.OutputDir == "" {
		c.Defaults.OutputDir = defaultOutputDir
	}
	if c.Defaults.Profile == "" {
		c.Defaults.Profile = defaultProfile
	}
	if c.ProfilesDir == "" {
		c.ProfilesDir = defaultProfilesDir
	}
	if c.TemplatesDir == "" {
		c.TemplatesDir = defaultTemplatesDir
	}
	if c.Render.Concurrency == 0 {
		c.Render.Concurrency = defaultConcurrency
	}

	return err
}

// InitConfig creates a default configuration file.
func InitConfig(configPath string) (err error) {
	// Determine config file location
	path := configPath
	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return err
		}
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	err = os.MkdirAll(dir, 0750)
	if err != nil {
		err = errors.Wrapf(err, "failed to create config directory: %s", dir)
		return err
	}

	// Check if file already exists
	_, err = os.Stat(path)
	if err == nil {
		err = errors.Errorf("config file already exists: %s", path)
		return err
	}

	defaultConfig := Config{
		Name:           "your-name",
		MasterLocation: filepath.Join(dir, "master.json"),
		ProfilesDir:    filepath.Join(dir, "profiles"),
		TemplatesDir:   filepath.Join(dir, "templates"),
		Defaults: DefaultConfig{
			OutputDir: defaultOutputDir,
			Profile:   defaultProfile,
		},
		Log: LogConfig{
			Level:  string(logging.LevelInfo),
			Format: string(logging.FormatText),
		},
		Render: RenderConfig{
			Concurrency: defaultConcurrency,
		},
	}

	// Write to file
	var data []byte
	data, err = json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		err = errors.Wrap(err, "failed to marshal default config")
		return err
	}

	err = os.WriteFile(path, data, 0600)
	if err != nil {
		err = errors.Wrapf(err, "failed to write config file: %s", path)
		return err
	}

	return err
}
