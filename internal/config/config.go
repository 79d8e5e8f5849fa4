package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jiandanzhineng/easysmart-tools/pkg/logger"
	"github.com/spf13/viper"
)

const (
	DefaultOutputDir     = "./mirror"
	DefaultSecondaryURL  = "https://codeload.github.com/jiandanzhineng/control-panel/zip/refs/heads/stable"
	DefaultSecondaryFile = "control-panel-stable.zip"

	// 60*60*60*60 seconds, as the devices in the field expect.
	DefaultRecordTTL = 60 * 60 * 60 * 60 * time.Second
)

// DefaultBrowseTypes are the well-known service types scanned by browse.
var DefaultBrowseTypes = []string{
	"_http._tcp",
	"_https._tcp",
	"_ssh._tcp",
	"_ftp._tcp",
	"_printer._tcp",
	"_airplay._tcp",
	"_spotify-connect._tcp",
	"_googlecast._tcp",
	"_homekit._tcp",
	"_hap._tcp",
	"_smb._tcp",
	"_afpovertcp._tcp",
	"_device-info._tcp",
	"_workstation._tcp",
}

// Config holds all application configuration
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Mirror    MirrorConfig    `mapstructure:"mirror"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Broker    BrokerConfig    `mapstructure:"broker"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// MirrorConfig holds release mirror configuration
type MirrorConfig struct {
	Output         string          `mapstructure:"output"`
	Timeout        time.Duration   `mapstructure:"timeout"` // 0 means no client timeout
	VerifyChecksum bool            `mapstructure:"verify_checksum"`
	Projects       []ProjectConfig `mapstructure:"projects"`
}

// ProjectConfig describes one upstream project to mirror. Subdir is relative
// to MirrorConfig.Output; empty means the output directory itself.
type ProjectConfig struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`
	Subdir        string `mapstructure:"subdir"`
	SecondaryURL  string `mapstructure:"secondary_url"`
	SecondaryFile string `mapstructure:"secondary_file"`
}

// DiscoveryConfig holds mDNS announce/browse configuration
type DiscoveryConfig struct {
	Instance      string            `mapstructure:"instance"`
	Service       string            `mapstructure:"service"`
	Domain        string            `mapstructure:"domain"`
	Host          string            `mapstructure:"host"`
	Port          int               `mapstructure:"port"`
	Properties    map[string]string `mapstructure:"properties"`
	HostTTL       time.Duration     `mapstructure:"host_ttl"`
	OtherTTL      time.Duration     `mapstructure:"other_ttl"`
	BrowseTypes   []string          `mapstructure:"browse_types"`
	BrowseTimeout time.Duration     `mapstructure:"browse_timeout"`
	LookupTimeout time.Duration     `mapstructure:"lookup_timeout"`
}

// BrokerConfig holds the MQTT broker probe target
type BrokerConfig struct {
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	Timeout   time.Duration `mapstructure:"timeout"`
	KeepAlive time.Duration `mapstructure:"keepalive"`
}

// DefaultProjects returns the two upstream projects mirrored by default.
func DefaultProjects() []ProjectConfig {
	return []ProjectConfig{
		{
			Name:          "electron-client",
			BaseURL:       "https://github.com/jiandanzhineng/electron-client/releases/latest/download/",
			SecondaryURL:  DefaultSecondaryURL,
			SecondaryFile: DefaultSecondaryFile,
		},
		{
			Name:          "control-panel",
			BaseURL:       "https://github.com/jiandanzhineng/control-panel/releases/latest/download/",
			Subdir:        "control-panel",
			SecondaryURL:  DefaultSecondaryURL,
			SecondaryFile: DefaultSecondaryFile,
		},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.compress", false)

	v.SetDefault("mirror.output", DefaultOutputDir)
	v.SetDefault("mirror.timeout", time.Duration(0))
	v.SetDefault("mirror.verify_checksum", false)

	v.SetDefault("discovery.instance", "EasySmartSever")
	v.SetDefault("discovery.service", "_http._tcp")
	v.SetDefault("discovery.domain", "local.")
	v.SetDefault("discovery.host", "easysmart.local.")
	v.SetDefault("discovery.port", 80)
	v.SetDefault("discovery.properties", map[string]string{"path": "/~paulsm/"})
	v.SetDefault("discovery.host_ttl", DefaultRecordTTL)
	v.SetDefault("discovery.other_ttl", DefaultRecordTTL)
	v.SetDefault("discovery.browse_types", DefaultBrowseTypes)
	v.SetDefault("discovery.browse_timeout", 5*time.Second)
	v.SetDefault("discovery.lookup_timeout", 3*time.Second)

	v.SetDefault("broker.host", "easysmart.local")
	v.SetDefault("broker.port", 1883)
	v.SetDefault("broker.timeout", 5*time.Second)
	v.SetDefault("broker.keepalive", 5*time.Second)
}

// LoadConfig loads configuration from file, environment and defaults. An
// explicit path must exist; without one a missing config.yaml is fine.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.easysmart")
		v.AddConfigPath("/etc/easysmart")
	}

	v.SetEnvPrefix("EASYSMART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(config.Mirror.Projects) == 0 {
		config.Mirror.Projects = DefaultProjects()
	}
	for i := range config.Mirror.Projects {
		p := &config.Mirror.Projects[i]
		if p.SecondaryURL == "" {
			p.SecondaryURL = DefaultSecondaryURL
		}
		if p.SecondaryFile == "" {
			p.SecondaryFile = DefaultSecondaryFile
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations no subcommand can run with.
func (c *Config) Validate() error {
	for i, p := range c.Mirror.Projects {
		if p.BaseURL == "" {
			return fmt.Errorf("mirror.projects[%d]: base_url is required", i)
		}
		if p.Name == "" {
			return fmt.Errorf("mirror.projects[%d]: name is required", i)
		}
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port out of range: %d", c.Broker.Port)
	}
	if c.Discovery.Port <= 0 || c.Discovery.Port > 65535 {
		return fmt.Errorf("discovery.port out of range: %d", c.Discovery.Port)
	}
	return nil
}

// InitLogger initializes the logger with the provided configuration
func InitLogger(cfg *LoggingConfig) error {
	return logger.Init(logger.Config{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Module:     "main",
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

// DefaultConfig returns the configuration used when nothing is loaded.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    10,
			MaxAge:     7,
			MaxBackups: 3,
		},
		Mirror: MirrorConfig{
			Output:   DefaultOutputDir,
			Projects: DefaultProjects(),
		},
		Discovery: DiscoveryConfig{
			Instance:      "EasySmartSever",
			Service:       "_http._tcp",
			Domain:        "local.",
			Host:          "easysmart.local.",
			Port:          80,
			Properties:    map[string]string{"path": "/~paulsm/"},
			HostTTL:       DefaultRecordTTL,
			OtherTTL:      DefaultRecordTTL,
			BrowseTypes:   append([]string(nil), DefaultBrowseTypes...),
			BrowseTimeout: 5 * time.Second,
			LookupTimeout: 3 * time.Second,
		},
		Broker: BrokerConfig{
			Host:      "easysmart.local",
			Port:      1883,
			Timeout:   5 * time.Second,
			KeepAlive: 5 * time.Second,
		},
	}
}
