package internal

import (
	"fmt"
	"time"
)

// Config is the full environment of the hub process. Everything without a
// default is mandatory; the process refuses to start on a missing value
// rather than running with a guess.
type Config struct {
	Host string `env:"HOST,default=localhost"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	TokenSecret       string        `env:"TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,required=true"`
	MaxMissedPongs    int           `env:"MAX_MISSED_PONGS,default=3"`

	RoomCacheBound    int `env:"ROOM_CACHE_BOUND,default=1000"`
	OfflineBufferSize int `env:"OFFLINE_BUFFER_SIZE,default=1000"`
	BusQueueSize      int `env:"BUS_QUEUE_SIZE,default=1024"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	MetricInterval time.Duration `env:"METRIC_INTERVAL,required=true"`

	// DebugPort exposes the badger inspector when non-zero. Never enable it
	// on an exposed interface.
	DebugPort int `env:"DEBUG_PORT"`
}

// CharacterRune checks that the configured censor replacement is exactly one
// character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
