package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type AppConfig struct {
	ServerAddr string `mapstructure:"SERVER_ADDR" validate:"min=2"`
	GinMode    string `mapstructure:"GIN_MODE" validate:"oneof=debug release test"`
	DataDir    string `mapstructure:"DATA_DIR" validate:"min=1"`

	StorageMode      string        `mapstructure:"STORAGE_MODE" validate:"oneof=memory bbolt"`
	SnapshotInterval time.Duration `mapstructure:"SNAPSHOT_INTERVAL" validate:"nonzero_duration"`
	SnapshotTimeout  time.Duration `mapstructure:"SNAPSHOT_TIMEOUT" validate:"nonzero_duration"`

	JWTSecret  string        `mapstructure:"JWT_SECRET" validate:"min=16"`
	TokenTTL   time.Duration `mapstructure:"TOKEN_TTL" validate:"nonzero_duration"`
	BcryptCost int           `mapstructure:"BCRYPT_COST" validate:"min=4,max=31"`
}

func (c *AppConfig) Validate() error {
	v := validator.New()

	_ = v.RegisterValidation("nonzero_duration", func(fl validator.FieldLevel) bool {
		if d, ok := fl.Field().Interface().(time.Duration); ok {
			return d > 0
		} else {
			return false
		}
	})
	if err := v.Struct(c); err != nil {
		return err
	}
	return nil
}

func LoadAppConfig(name, ext string, paths ...string) (*AppConfig, error) {
	for _, path := range paths {
		viper.AddConfigPath(path)
	}
	viper.SetConfigName(name)
	viper.SetConfigType(ext)
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("GIN_MODE", "debug")
	viper.SetDefault("DATA_DIR", "./data/server")
	viper.SetDefault("STORAGE_MODE", "bbolt")
	viper.SetDefault("SNAPSHOT_INTERVAL", 6*time.Hour)
	viper.SetDefault("SNAPSHOT_TIMEOUT", time.Minute)
	viper.SetDefault("TOKEN_TTL", 24*time.Hour)
	viper.SetDefault("BCRYPT_COST", 10)

	err := viper.ReadInConfig()

	if err != nil {
		return nil, err
	}
	cfg := &AppConfig{}
	err = viper.Unmarshal(cfg)
	if err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
