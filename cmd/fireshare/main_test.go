package main

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/fireshare/internal/testutil"
)

func Test_run(t *testing.T) {
	noEnv := func(string) string { return "" }
	getwd := func() (string, error) { return t.TempDir(), nil }

	listenAddr := func(t *testing.T) string {
		port, err := testutil.RandomPort()
		require.NoError(t, err, "failed to get random port to start server")
		return fmt.Sprintf("localhost:%d", port)
	}

	t.Run("stop with signal", func(t *testing.T) {
		pg := testutil.StartPostgresContainer(t)
		t.Cleanup(pg.Terminate)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr(t),
			"--log-level", "debug",
			"--database", pg.DSN,
			"--secret-key", "secret",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("serve in memory", func(t *testing.T) {
		addr := listenAddr(t)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		done := make(chan error, 1)
		go func() {
			done <- run(ctx, noEnv, getwd, []string{"--address", addr, "--secret-key", "secret"})
		}()

		require.EventuallyWithT(t, func(c *assert.CollectT) {
			resp, err := http.Get("http://" + addr + "/api/me")
			if !assert.NoError(c, err) {
				return
			}
			defer resp.Body.Close() // nolint:errcheck
			assert.Equal(c, http.StatusUnauthorized, resp.StatusCode)
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		require.NoError(t, <-done)
	})

	t.Run("stop with srv error", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		// Try to run without secret key. Must fail
		err := run(ctx, noEnv, getwd, []string{
			"--address", listenAddr(t),
			"--log-level", "debug",
		})

		require.Error(t, err, "on incorrect stop should return error")
	})

	t.Run("invalid environment", func(t *testing.T) {
		err := run(t.Context(), func(key string) string {
			if key == "FANOUT_LIMIT" {
				return "many"
			}
			return ""
		}, getwd, []string{"--secret-key", "secret"})

		require.ErrorContains(t, err, "FANOUT_LIMIT")
	})
}
