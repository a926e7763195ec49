package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/BioHazard786/solfa/internal/protocol"
)

// Default configuration values
const (
	DefaultServer = "ws://localhost:3001/ws"
	DefaultSTUN   = "stun:stun.l.google.com:19302,stun:stun.services.mozilla.com"
	DefaultCodec  = "json"
	DefaultTone   = 440.0

	DefaultAddr            = ":3001"
	DefaultAllowedOrigins  = "*"
	DefaultMaxMessageBytes = 64 << 10
	DefaultSendQueue       = 256
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the client configuration
type Config struct {
	// Server is the relay's WebSocket URL
	Server string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	Codec protocol.Codec

	// Audio is a raw PCM file; Tone is used when it is empty
	Audio string
	Tone  float64
}

// Options for loading config with CLI flag overrides
type Options struct {
	Server      string
	STUNServers string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	Codec       string
	Audio       string
	Tone        float64
}

// Load reads client configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	server := pick(opts.Server, "SOLFA_SERVER", DefaultServer)
	u, err := url.Parse(server)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: server %q must be a ws:// or wss:// URL", ErrInvalidConfig, server)
	}

	codec, err := protocol.ParseCodec(pick(opts.Codec, "SOLFA_CODEC", DefaultCodec))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	tone := opts.Tone
	if tone == 0 {
		if raw := os.Getenv("SOLFA_TONE"); raw != "" {
			tone, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: SOLFA_TONE %q: %w", ErrInvalidConfig, raw, err)
			}
		}
	}
	if tone == 0 {
		tone = DefaultTone
	}
	if tone < 0 {
		return nil, fmt.Errorf("%w: tone must be positive", ErrInvalidConfig)
	}

	forceRelay := opts.ForceRelay
	if !forceRelay {
		forceRelay, _ = strconv.ParseBool(os.Getenv("FORCE_RELAY"))
	}

	return &Config{
		Server:      server,
		STUNServers: splitList(pick(opts.STUNServers, "STUN_SERVERS", DefaultSTUN)),
		TURNServer:  pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:    pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:    pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:  forceRelay,
		Codec:       codec,
		Audio:       pick(opts.Audio, "SOLFA_AUDIO", ""),
		Tone:        tone,
	}, nil
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ServerConfig holds the relay configuration
type ServerConfig struct {
	Addr            string
	AllowedOrigins  []string
	MaxMessageBytes int64
	SendQueue       int
}

// ServerOptions carries flag overrides for LoadServer
type ServerOptions struct {
	Addr            string
	AllowedOrigins  string
	MaxMessageBytes int64
	SendQueue       int
}

// LoadServer reads relay configuration, flags first, then env, then
// defaults. PORT may be a bare port number.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	addr := pick(opts.Addr, "PORT", DefaultAddr)
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	maxBytes := opts.MaxMessageBytes
	if maxBytes == 0 {
		n, err := envInt("MAX_MESSAGE_BYTES", DefaultMaxMessageBytes)
		if err != nil {
			return nil, err
		}
		maxBytes = int64(n)
	}
	queue := opts.SendQueue
	if queue == 0 {
		n, err := envInt("SEND_QUEUE", DefaultSendQueue)
		if err != nil {
			return nil, err
		}
		queue = n
	}
	if maxBytes <= 0 || queue <= 0 {
		return nil, fmt.Errorf("%w: message size and send queue must be positive", ErrInvalidConfig)
	}

	return &ServerConfig{
		Addr:            addr,
		AllowedOrigins:  splitList(pick(opts.AllowedOrigins, "ALLOWED_ORIGINS", DefaultAllowedOrigins)),
		MaxMessageBytes: maxBytes,
		SendQueue:       queue,
	}, nil
}

// pick returns flag, else the env var, else fallback.
func pick(flag, env, fallback string) string {
	if flag != "" {
		return flag
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrInvalidConfig, key, raw, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
