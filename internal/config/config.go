package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHATSIGNAL"

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	ReadLimit      int64         `mapstructure:"read_limit"`
	PingPeriod     time.Duration `mapstructure:"ping_period"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	Secret         string        `mapstructure:"secret"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	Policy         string        `mapstructure:"policy"`
	IceServers     []string      `mapstructure:"ice_servers"`
	LogLevel       string        `mapstructure:"log_level"`
	Relay          RelayConfig   `mapstructure:"relay"`
	Call           CallConfig    `mapstructure:"call"`
	RateLimit      RateConfig    `mapstructure:"rate_limit"`
}

type RelayConfig struct {
	TypingExcludeSender bool `mapstructure:"typing_exclude_sender"`
}

type CallConfig struct {
	NotifyFailure       bool `mapstructure:"notify_failure"`
	CandidateQueueLimit int  `mapstructure:"candidate_queue_limit"`
	StrictSDP           bool `mapstructure:"strict_sdp"`
}

type RateConfig struct {
	Events   int           `mapstructure:"events"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("policy", "drop")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("log_level", "info")
	v.SetDefault("relay.typing_exclude_sender", false)
	v.SetDefault("call.notify_failure", true)
	v.SetDefault("call.candidate_queue_limit", 32)
	v.SetDefault("call.strict_sdp", true)
	v.SetDefault("rate_limit.events", 100)
	v.SetDefault("rate_limit.interval", "1s")
}

// Load reads .env, then config/config.<env>.yaml, then CHATSIGNAL_* variables,
// then any flags set on fs. Later sources win. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Debug().Str("module", "config").Msg("loaded .env")
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	env := os.Getenv("CONFIG_ENV")
	if fs != nil {
		if f := fs.Lookup("env"); f != nil && f.Changed {
			env = f.Value.String()
		}
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("policy", cfg.Policy).Msg("config ready")
	return &cfg, nil
}
