package config

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Configuration struct {
	Logs      LogsSettings     `mapstructure:"logs"`
	App       Application      `mapstructure:"app"`
	Database  Database         `mapstructure:"database"`
	Redis     Redis            `mapstructure:"redis"`
	Cache     CacheConfig      `mapstructure:"cache"`
	Access    AccessConfig     `mapstructure:"access"`
	Publisher PublisherConfig  `mapstructure:"publisher"`
	Sweeper   SweeperConfig    `mapstructure:"sweeper"`
	Security  SecuritySettings `mapstructure:"security"`
	Server    ServerSettings   `mapstructure:"server"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name    string `mapstructure:"name"`
	Timeout int    `mapstructure:"timeout"`
	Version string `mapstructure:"version"`
	SiteURL string `mapstructure:"site-url"`
}

type Database struct {
	Url                 string `mapstructure:"url"`
	DbName              string `mapstructure:"dbname"`
	SessionCollection   string `mapstructure:"session-collection"`
	AccessCollection    string `mapstructure:"access-collection"`
	WhitelistCollection string `mapstructure:"whitelist-collection"`
	Timeout             int    `mapstructure:"timeout"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type CacheConfig struct {
	StatsKey               string `mapstructure:"stats-key"`
	StatsExpirationMinutes int    `mapstructure:"stats-expiration-minutes"`
}

// AccessConfig holds the policy knobs for token issuance and redemption.
type AccessConfig struct {
	AllowedDurations  []int   `mapstructure:"allowed-durations"`
	SessionTTLSeconds int     `mapstructure:"session-ttl-seconds"`
	AdminIDs          []int64 `mapstructure:"admin-ids"`
}

type PublisherConfig struct {
	// Mode selects the delivery strategy: "mqtt", "rabbitmq" or "log".
	Mode     string         `mapstructure:"mode"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type MQTTConfig struct {
	Url                    string          `mapstructure:"url"`
	ClientID               string          `mapstructure:"client-id"`
	Username               string          `mapstructure:"username"`
	Password               string          `mapstructure:"password"`
	TopicPrefix            string          `mapstructure:"topic-prefix"`
	QoS                    int             `mapstructure:"qos"`
	ConnectTimeoutSeconds  int             `mapstructure:"connect-timeout-seconds"`
	KeepAliveSeconds       int             `mapstructure:"keep-alive-seconds"`
	CleanupIntervalSeconds int             `mapstructure:"cleanup-interval-seconds"`
	ClearRetrySeconds      int             `mapstructure:"clear-retry-seconds"`
	Reconnect              ReconnectConfig `mapstructure:"reconnect"`
}

type RabbitMQConfig struct {
	Url              string          `mapstructure:"url"`
	Exchange         string          `mapstructure:"exchange"`
	ExchangeType     string          `mapstructure:"exchange-type"`
	Queue            string          `mapstructure:"queue"`
	RoutingKey       string          `mapstructure:"routing-key"`
	Durable          bool            `mapstructure:"durable"`
	AutoDelete       bool            `mapstructure:"auto-delete"`
	Internal         bool            `mapstructure:"internal"`
	NoWait           bool            `mapstructure:"no-wait"`
	KeepAliveSeconds int             `mapstructure:"keep-alive-seconds"`
	Reconnect        ReconnectConfig `mapstructure:"reconnect"`
}

// ReconnectConfig bounds one reconnection episode of a publisher.
type ReconnectConfig struct {
	BaseDelaySeconds int `mapstructure:"base-delay-seconds"`
	MaxDelaySeconds  int `mapstructure:"max-delay-seconds"`
	MaxAttempts      int `mapstructure:"max-attempts"`
}

type SweeperConfig struct {
	IntervalSeconds        int `mapstructure:"interval-seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"shutdown-timeout-seconds"`
}

type SecuritySettings struct {
	JwtKey string `mapstructure:"jwt-key"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

func Load() *Configuration {
	cfg := read()
	logrus.Info("Configuration loaded")

	// Override with environment variables
	mongoUri := os.Getenv("MONGODB_URL")
	if mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	dbName := os.Getenv("DB_NAME")
	if dbName != "" {
		cfg.Database.DbName = dbName
	}

	redisUrl := os.Getenv("REDIS_URL")
	if redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	redisDB := os.Getenv("REDIS_DB")
	if redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	rabbitmqUrl := os.Getenv("RABBITMQ_URL")
	if rabbitmqUrl != "" {
		cfg.Publisher.RabbitMQ.Url = rabbitmqUrl
	}

	mqttUrl := os.Getenv("MQTT_URL")
	if mqttUrl != "" {
		cfg.Publisher.MQTT.Url = mqttUrl
	}

	publisherMode := os.Getenv("PUBLISHER_MODE")
	if publisherMode != "" {
		cfg.Publisher.Mode = publisherMode
	}

	jwtKey := os.Getenv("JWT_KEY")
	if jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	return cfg
}

func read() *Configuration {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "src/internal/config/cfg.yml"
	}

	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetConfigType("yml")

	var config Configuration

	err := viper.ReadInConfig()
	if err != nil {
		logrus.Panicf("Error reading config file, %s", err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		logrus.Panicf("Error unmarshalling config file, %s", err)
	}

	return &config
}
