package env

import (
	"os"
)

// PodName is set by the deployment, e.g. listingengine-tracker-6868d88fbd-bz8zv
func PodName() string {
	return os.Getenv("PODNAME")
}

// EnvName is the deployment stage, empty when running locally
func EnvName() string {
	return get("ENV_NAME", "local")
}

// AppName is the binary name, "api" or "tracker"
func AppName() string {
	return get("APP_NAME", "listingengine")
}

func get(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
