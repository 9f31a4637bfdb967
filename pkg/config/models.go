package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Mongo     MongoConfig
	Fanout    FanoutConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address        string
	Auth           AuthConfig
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type MongoConfig struct {
	URI      string
	Database string
}

// FanoutConfig selects the cross-process broadcast adapter. Mode is one of
// "none", "mongo" or "redis". The mongo adapter tails BroadcastCollection in
// the same database the session store uses.
type FanoutConfig struct {
	Mode                string
	BroadcastCollection string `mapstructure:"broadcastCollection"`
	RedisURL            string `mapstructure:"redisURL"`
	RedisChannel        string `mapstructure:"redisChannel"`
}

type LogConfig struct {
	Level string
}
