// Package config loads and validates the RDP connection options recognized
// by the gateway, from environment variables with command-line overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Desktop geometry limits and defaults per MS-RDPBCGR.
const (
	MinDesktopWidth  = 200
	MaxDesktopWidth  = 8192
	MinDesktopHeight = 200
	MaxDesktopHeight = 8192
	MinScaleFactor   = 100
	MaxScaleFactor   = 500

	DefaultDesktopWidth  = 1920
	DefaultDesktopHeight = 1080
	DefaultScaleFactor   = 100
)

// Audio modes (audiomode option).
const (
	AudioModeLocal  = 0
	AudioModeServer = 1
	AudioModeNone   = 2
)

// Gateway usage methods (gatewayusagemethod option).
const (
	GatewayUsageDirect        = 0
	GatewayUsageAlways        = 1
	GatewayUsageDetect        = 2
	GatewayUsageDefault       = 3
	GatewayUsageDirectDefault = 4
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig
	RDP      RDPConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// LoadOptions holds command-line override options.
type LoadOptions struct {
	Host       string
	Port       string
	LogLevel   string
	SkipTLS    bool
	ServerName string

	// NoCredssp force-disables CredSSP regardless of the environment.
	NoCredssp bool
}

// ServerConfig holds gateway listener configuration.
type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RDPConfig holds the recognized RDP connection options.
type RDPConfig struct {
	DesktopWidth       int
	DesktopHeight      int
	DesktopScaleFactor int

	// EnableAudioPlayback is true only for audiomode 0 (local playback);
	// server playback (1) and none (2) leave it false.
	AudioMode           int
	EnableAudioPlayback bool

	RedirectClipboard bool
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EnableCredssp     bool
	SkipTLSValidation bool
	TLSServerName     string

	GatewayUsageMethod       int
	GatewayEnabled           bool
	GatewayCredentialsSource int

	// KdcProxyURL is kdcproxyname normalized to https://<host>/KdcProxy.
	KdcProxyURL string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string
}

// Load loads configuration from environment variables with defaults.
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := &Config{}

	config.Server.Host = getOverrideOrEnv(opts.Host, "SERVER_HOST", "0.0.0.0")
	config.Server.Port = getOverrideOrEnv(opts.Port, "SERVER_PORT", "8080")
	config.Server.ReadTimeout = getDurationWithDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	config.Server.WriteTimeout = getDurationWithDefault("SERVER_WRITE_TIMEOUT", 30*time.Second)

	config.RDP.DesktopWidth = clampWithDefault(
		getIntWithDefault("RDP_DESKTOP_WIDTH", DefaultDesktopWidth),
		MinDesktopWidth, MaxDesktopWidth, DefaultDesktopWidth)
	config.RDP.DesktopHeight = clampWithDefault(
		getIntWithDefault("RDP_DESKTOP_HEIGHT", DefaultDesktopHeight),
		MinDesktopHeight, MaxDesktopHeight, DefaultDesktopHeight)
	config.RDP.DesktopScaleFactor = clampWithDefault(
		getIntWithDefault("RDP_DESKTOP_SCALE_FACTOR", DefaultScaleFactor),
		MinScaleFactor, MaxScaleFactor, DefaultScaleFactor)

	config.RDP.AudioMode = getIntWithDefault("RDP_AUDIO_MODE", AudioModeLocal)
	if config.RDP.AudioMode < AudioModeLocal || config.RDP.AudioMode > AudioModeNone {
		config.RDP.AudioMode = AudioModeLocal
	}
	config.RDP.EnableAudioPlayback = config.RDP.AudioMode == AudioModeLocal

	config.RDP.RedirectClipboard = getBoolWithDefault("RDP_REDIRECT_CLIPBOARD", true)

	config.Security.EnableCredssp = getBoolWithDefault("ENABLE_CREDSSP", true)
	if opts.NoCredssp {
		config.Security.EnableCredssp = false
	}

	config.Security.SkipTLSValidation = getBoolWithDefault("SKIP_TLS_VALIDATION", false) || opts.SkipTLS
	config.Security.TLSServerName = getOverrideOrEnv(opts.ServerName, "TLS_SERVER_NAME", "")

	config.Security.GatewayUsageMethod = getIntWithDefault("GATEWAY_USAGE_METHOD", GatewayUsageDirect)
	// only "always" and "default" engage the gateway
	config.Security.GatewayEnabled = config.Security.GatewayUsageMethod == GatewayUsageAlways ||
		config.Security.GatewayUsageMethod == GatewayUsageDefault

	config.Security.GatewayCredentialsSource = getIntWithDefault("GATEWAY_CREDENTIALS_SOURCE", 0)
	// anything but user-supplied (0) or smart card (1) falls back to
	// username/password
	if config.Security.GatewayCredentialsSource != 0 && config.Security.GatewayCredentialsSource != 1 {
		config.Security.GatewayCredentialsSource = 0
	}

	if kdc := os.Getenv("KDC_PROXY_NAME"); kdc != "" {
		normalized, err := NormalizeKdcProxyName(kdc)
		if err != nil {
			return nil, err
		}

		config.Security.KdcProxyURL = normalized
	}

	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")

	return config, nil
}

// NormalizeKdcProxyName turns a kdcproxyname value into the canonical
// https://<host>/KdcProxy endpoint.
func NormalizeKdcProxyName(name string) (string, error) {
	host := strings.TrimSpace(name)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	host = strings.TrimSuffix(host, "/KdcProxy")

	if host == "" {
		return "", fmt.Errorf("kdcproxyname: empty host")
	}

	normalized := "https://" + host + "/KdcProxy"

	if _, err := url.Parse(normalized); err != nil {
		return "", fmt.Errorf("kdcproxyname: %w", err)
	}

	return normalized, nil
}

func clampWithDefault(value, minValue, maxValue, fallback int) int {
	if value < minValue || value > maxValue {
		return fallback
	}
	return value
}

func getOverrideOrEnv(override, key, fallback string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(key, fallback)
}

func getEnvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntWithDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getBoolWithDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return parsed
}

func getDurationWithDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return parsed
}
