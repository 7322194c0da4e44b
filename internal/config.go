package internal

import "time"

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	TypingTTL            time.Duration `env:"TYPING_TTL,default=3s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	ReadLimit            int64         `env:"READ_LIMIT_BYTES,default=65536"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=54s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
}
