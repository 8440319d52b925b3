package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, port int) Config {
	t.Helper()

	dir := t.TempDir()
	return Config{
		Issuer:    "identity-test",
		JWTSecret: "0123456789abcdef0123456789abcdef",

		AccessTTL:        15 * time.Minute,
		RefreshTTL:       time.Hour,
		EmailVerifyTTL:   time.Hour,
		PasswordResetTTL: time.Hour,
		OAuthStateTTL:    10 * time.Minute,
		ClockSkew:        time.Minute,

		DatabaseFile: filepath.Join(dir, "identity.db"),
		PepperFile:   filepath.Join(dir, "pepper"),

		Env:       "test",
		LogLevel:  "error",
		LogFormat: "text",

		Port:                 port,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	cfg := testConfig(t, 0)
	cfg.JWTSecret = ""

	_, err := New(cfg)
	require.Error(t, err)
}

func TestRun_ReleasesResourcesOnServerFailure(t *testing.T) {
	// Occupy a port so ListenAndServe fails immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	application, err := New(testConfig(t, port))
	require.NoError(t, err)

	err = application.Run()
	require.Error(t, err)

	// The failure path released the store, not just the goroutine.
	require.Error(t, application.db.Ping(context.Background()))
}
