package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithOverrides(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, DefaultDesktopWidth, cfg.RDP.DesktopWidth)
	assert.Equal(t, DefaultDesktopHeight, cfg.RDP.DesktopHeight)
	assert.Equal(t, DefaultScaleFactor, cfg.RDP.DesktopScaleFactor)
	assert.True(t, cfg.Security.EnableCredssp)
	assert.True(t, cfg.RDP.EnableAudioPlayback)
	assert.False(t, cfg.Security.GatewayEnabled)
}

func TestDesktopRangeFallback(t *testing.T) {
	t.Setenv("RDP_DESKTOP_WIDTH", "100") // below the 200 minimum
	t.Setenv("RDP_DESKTOP_HEIGHT", "9000") // above the 8192 maximum
	t.Setenv("RDP_DESKTOP_SCALE_FACTOR", "600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultDesktopWidth, cfg.RDP.DesktopWidth)
	assert.Equal(t, DefaultDesktopHeight, cfg.RDP.DesktopHeight)
	assert.Equal(t, DefaultScaleFactor, cfg.RDP.DesktopScaleFactor)
}

func TestDesktopInRange(t *testing.T) {
	t.Setenv("RDP_DESKTOP_WIDTH", "2560")
	t.Setenv("RDP_DESKTOP_HEIGHT", "1440")
	t.Setenv("RDP_DESKTOP_SCALE_FACTOR", "200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2560, cfg.RDP.DesktopWidth)
	assert.Equal(t, 1440, cfg.RDP.DesktopHeight)
	assert.Equal(t, 200, cfg.RDP.DesktopScaleFactor)
}

func TestAudioMode(t *testing.T) {
	t.Setenv("RDP_AUDIO_MODE", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, AudioModeNone, cfg.RDP.AudioMode)
	assert.False(t, cfg.RDP.EnableAudioPlayback)

	t.Setenv("RDP_AUDIO_MODE", "7") // out of range falls back to local

	cfg, err = Load()
	require.NoError(t, err)

	assert.Equal(t, AudioModeLocal, cfg.RDP.AudioMode)
	assert.True(t, cfg.RDP.EnableAudioPlayback)
}

func TestNoCredsspOverride(t *testing.T) {
	t.Setenv("ENABLE_CREDSSP", "true")

	cfg, err := LoadWithOverrides(LoadOptions{NoCredssp: true})
	require.NoError(t, err)

	assert.False(t, cfg.Security.EnableCredssp)
}

func TestGatewayUsageMethod(t *testing.T) {
	for method, enabled := range map[string]bool{
		"0": false,
		"1": true,
		"2": false,
		"3": true,
		"4": false,
	} {
		t.Setenv("GATEWAY_USAGE_METHOD", method)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, enabled, cfg.Security.GatewayEnabled, "method %s", method)
	}
}

func TestGatewayCredentialsSourceFallback(t *testing.T) {
	t.Setenv("GATEWAY_CREDENTIALS_SOURCE", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Security.GatewayCredentialsSource)

	t.Setenv("GATEWAY_CREDENTIALS_SOURCE", "1")

	cfg, err = Load()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Security.GatewayCredentialsSource)
}

func TestNormalizeKdcProxyName(t *testing.T) {
	for input, want := range map[string]string{
		"kdc.example.com":                      "https://kdc.example.com/KdcProxy",
		"https://kdc.example.com":              "https://kdc.example.com/KdcProxy",
		"https://kdc.example.com/KdcProxy":     "https://kdc.example.com/KdcProxy",
		"kdc.example.com:443":                  "https://kdc.example.com:443/KdcProxy",
	} {
		got, err := NormalizeKdcProxyName(input)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeKdcProxyName("")
	require.Error(t, err)
}

func TestKdcProxyFromEnvironment(t *testing.T) {
	t.Setenv("KDC_PROXY_NAME", "kdc.corp.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://kdc.corp.example/KdcProxy", cfg.Security.KdcProxyURL)
}
