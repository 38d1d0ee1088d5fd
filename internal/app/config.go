package app

import (
	"github.com/haventide/compass-backend/internal/platform/envutil"
)

type Config struct {
	Port            string
	LogMode         string
	JWTSecretKey    string
	SSEBackend      string
	DevToolsEnabled bool
}

func LoadConfig() Config {
	return Config{
		Port:            envutil.Str("PORT", "8080"),
		LogMode:         envutil.Str("LOG_MODE", "development"),
		JWTSecretKey:    envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		SSEBackend:      envutil.Str("SSE_BACKEND", "hub"),
		DevToolsEnabled: envutil.Bool("DEV_TOOLS_ENABLED", false),
	}
}
