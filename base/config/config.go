package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/x-xyz/listingengine/base/database/mongoclient"
	"github.com/x-xyz/listingengine/base/database/redisclient"
	"github.com/x-xyz/listingengine/base/env"
	"github.com/x-xyz/listingengine/base/log"
)

// Load reads the yaml file named by --config, defaultPath when the flag is
// absent, into the global viper. Variables from a .env file in the working
// directory are exported first, and every key can be overridden from the
// environment with dots replaced by underscores, e.g. MONGO_URI.
func Load(args []string, defaultPath string) error {
	flags := pflag.NewFlagSet(env.AppName(), pflag.ContinueOnError)
	path := flags.String("config", defaultPath, "yaml config file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	viper.SetConfigType("yaml")
	viper.SetConfigFile(*path)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

// InitLog configures the global logger from log.level and sentry.dsn
func InitLog() error {
	return log.Init(log.Config{
		Level:     viper.GetString("log.level"),
		SentryDSN: viper.GetString("sentry.dsn"),
		Tags: map[string]string{
			"app": env.AppName(),
			"env": env.EnvName(),
		},
	})
}

func Mongo() mongoclient.Config {
	return mongoclient.Config{
		URI:            viper.GetString("mongo.uri"),
		DbName:         viper.GetString("mongo.dbName"),
		AuthDB:         viper.GetString("mongo.authDBName"),
		TLS:            viper.GetBool("mongo.enableSSL"),
		Majority:       true,
		PoolMultiplier: viper.GetFloat64("mongo.poolMultiplier"),
	}
}

func Redis() redisclient.Config {
	return redisclient.Config{
		URI:            viper.GetString("redis.uri"),
		Password:       viper.GetString("redis.password"),
		PoolMultiplier: viper.GetFloat64("redis.poolMultiplier"),
		Attempts:       viper.GetInt("redis.attempts"),
	}
}

// Duration reads key, falling back when it is unset or not positive
func Duration(key string, fallback time.Duration) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	return fallback
}
