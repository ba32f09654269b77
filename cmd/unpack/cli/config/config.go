package config

// Config represents the unpack CLI configuration.
// Use mapstructure tags for Viper unmarshaling.
type Config struct {
	Progress    string       `mapstructure:"progress"`
	Concurrency int          `mapstructure:"concurrency"`
	Limits      LimitsConfig `mapstructure:"limits"`
}

// LimitsConfig holds extraction safety limit settings. Sizes are
// human-readable strings such as "100MB"; empty means unlimited.
type LimitsConfig struct {
	MaxFiles     int    `mapstructure:"max-files"`
	MaxFileSize  string `mapstructure:"max-file-size"`
	MaxTotalSize string `mapstructure:"max-total-size"`
}
