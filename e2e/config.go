// Package e2e exercises the hub through a real websocket, end to end: a full
// in-process stack is wired per test and protocol clients talk to it the way
// production clients would.
package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_DEBUG_FRAMES dumps every frame each scenario client receives
	DebugFrames bool `envconfig:"E2E_DEBUG_FRAMES" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_HEARTBEAT_MS shortens the heartbeat so timeout scenarios stay fast
	HeartbeatMs int `envconfig:"E2E_HEARTBEAT_MS" default:"50"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
