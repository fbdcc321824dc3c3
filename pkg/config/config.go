// Package config holds the process configuration of the server.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/exp/slices"
)

// ErrInvalid is returned by Validate and FromEnv for unusable settings.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the process configuration.
type Config struct {
	// Addr is the TCP address to listen on.
	Addr string

	// ServerName is sent in the Server header of every response.
	ServerName string

	// MaxTransferUnit bounds the size of each chunk read from disk while
	// streaming a file response.
	MaxTransferUnit int

	// ReadBufferSize is the size of each read from an upgraded connection.
	ReadBufferSize int

	// MaxPayloadSize bounds inbound WebSocket frame payloads.
	MaxPayloadSize uint64

	// IdleTimeout closes upgraded connections that stay silent for longer.
	IdleTimeout time.Duration

	// StaticRoot is the directory served under /static/.
	StaticRoot string

	// RateLimit is the number of requests per second admitted. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the rate limiter bucket size.
	RateBurst int
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:            ":8080",
		ServerName:      "mghttpd/v2.12",
		MaxTransferUnit: 8192,
		ReadBufferSize:  4096,
		MaxPayloadSize:  1 << 20,
		IdleTimeout:     5 * time.Minute,
		StaticRoot:      "static",
		RateLimit:       0,
		RateBurst:       1,
	}
}

// Environment variable names read by FromEnv.
const (
	EnvAddr            = "MGHTTPD_ADDR"
	EnvServerName      = "MGHTTPD_SERVER_NAME"
	EnvMaxTransferUnit = "MGHTTPD_MAX_TRANSFER_UNIT"
	EnvReadBufferSize  = "MGHTTPD_READ_BUFFER_SIZE"
	EnvMaxPayloadSize  = "MGHTTPD_MAX_PAYLOAD_SIZE"
	EnvIdleTimeout     = "MGHTTPD_IDLE_TIMEOUT"
	EnvStaticRoot      = "MGHTTPD_STATIC_ROOT"
	EnvRateLimit       = "MGHTTPD_RATE_LIMIT"
	EnvRateBurst       = "MGHTTPD_RATE_BURST"
)

// FromEnv overlays Default with values found through lookup, which has the
// signature of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()

	if v, ok := lookup(EnvAddr); ok {
		c.Addr = v
	}
	if v, ok := lookup(EnvServerName); ok {
		c.ServerName = v
	}
	if v, ok := lookup(EnvStaticRoot); ok {
		c.StaticRoot = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{EnvMaxTransferUnit, &c.MaxTransferUnit},
		{EnvReadBufferSize, &c.ReadBufferSize},
		{EnvRateBurst, &c.RateBurst},
	}
	for _, i := range ints {
		v, ok := lookup(i.name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, i.name, err)
		}
		*i.dst = n
	}

	if v, ok := lookup(EnvMaxPayloadSize); ok {
		n, err := strconv.ParseUint(v, 10, 63)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvMaxPayloadSize, err)
		}
		c.MaxPayloadSize = n
	}

	if v, ok := lookup(EnvIdleTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvIdleTimeout, err)
		}
		c.IdleTimeout = d
	}

	if v, ok := lookup(EnvRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrInvalid, EnvRateLimit, err)
		}
		c.RateLimit = f
	}

	return c, c.Validate()
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: empty listen address", ErrInvalid)
	}
	if c.MaxTransferUnit <= 0 {
		return fmt.Errorf("%w: max transfer unit must be positive, got %d", ErrInvalid, c.MaxTransferUnit)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: read buffer size must be positive, got %d", ErrInvalid, c.ReadBufferSize)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: negative idle timeout %s", ErrInvalid, c.IdleTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: negative rate limit %v", ErrInvalid, c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("%w: rate burst must be at least 1, got %d", ErrInvalid, c.RateBurst)
	}
	if slices.Contains([]string{"", "."}, c.StaticRoot) {
		return fmt.Errorf("%w: static root %q would expose the working directory", ErrInvalid, c.StaticRoot)
	}
	return nil
}
