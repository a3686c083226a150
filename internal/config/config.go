package config

import (
	"strings"
	"time"

	"github.com/openbusio/backplane/params"
	"github.com/spf13/viper"
)

const (
	DefaultListenAddr = ":3000"
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type WorkerConfig struct {
	// Disable stops this node from participating in leader election for
	// the message worker role; the HTTP surface still runs.
	Disable   bool          `mapstructure:"disable"`
	LeaderKey string        `mapstructure:"leaderKey"`
	LeaseTTL  time.Duration `mapstructure:"leaseTTL"`
}

type Config struct {
	Debug        bool         `mapstructure:"debug"`
	BaseURL      string       `mapstructure:"baseURL"`
	MasterKey    string       `mapstructure:"masterKey"`
	ListenAddr   string       `mapstructure:"listenAddr"`
	AllowOrigins []string     `mapstructure:"allowOrigins"`
	Redis        RedisConfig  `mapstructure:"redis"`
	MySQL        MySQLConfig  `mapstructure:"mysql"`
	Worker       WorkerConfig `mapstructure:"worker"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Worker.LeaderKey == "" {
		c.Worker.LeaderKey = "v2_worker_leader"
	}
	if c.Worker.LeaseTTL == 0 {
		c.Worker.LeaseTTL = params.LeaderLeaseTTL
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
