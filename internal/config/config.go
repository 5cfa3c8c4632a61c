package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config is parsed from the environment. MaxFrameBytes defaults to 50 MiB:
// snapshot transfers carry thumbnail grids and whole datasets, so the frame
// limit has to sit far above ordinary control-message size.
type Config struct {
	HTTPServerPort uint16 `env:"HTTP_SERVER_PORT" envDefault:"8090" validate:"min=1,max=65535"`

	MaxFrameBytes int64 `env:"MAX_FRAME_BYTES" envDefault:"52428800" validate:"min=1024"`

	TransferTimeout time.Duration `env:"TRANSFER_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL"   envDefault:"1s"  validate:"gt=0"`

	PingInterval time.Duration `env:"PING_INTERVAL" envDefault:"30s" validate:"gt=0"`
	PongWait     time.Duration `env:"PONG_WAIT"     envDefault:"60s" validate:"gt=0"`
	WriteWait    time.Duration `env:"WRITE_WAIT"    envDefault:"10s" validate:"gt=0"`

	HistoryEnabled bool   `env:"HISTORY_ENABLED" envDefault:"true"`
	HistoryDBPath  string `env:"HISTORY_DB_PATH" envDefault:"./classboard.db" validate:"required"`
}

// LoadConfig reads .env if present, parses the environment, and validates
// the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}

	// Pings that outpace the pong window would disconnect healthy clients.
	if cfg.PongWait <= cfg.PingInterval {
		return nil, fmt.Errorf("PONG_WAIT (%s) must exceed PING_INTERVAL (%s)",
			cfg.PongWait, cfg.PingInterval)
	}

	return cfg, nil
}
