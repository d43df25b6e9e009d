package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("counters", func(t *testing.T) {
		m := New()

		m.ObserveSteamCall("GetOwnAuthorizedDevices", OutcomeOK, 10*time.Millisecond)
		m.ObserveSteamCall("GetOwnAuthorizedDevices", OutcomeOK, 10*time.Millisecond)
		m.QRLogin(OutcomeTimedOut)
		m.LenderResolved(OutcomeAuthFailure)
		m.RemoteMutation("authorize_device")

		require.Equal(t, 2.0, testutil.ToFloat64(m.steamCalls.WithLabelValues("GetOwnAuthorizedDevices", OutcomeOK)))
		require.Equal(t, 1.0, testutil.ToFloat64(m.qrLogins.WithLabelValues(OutcomeTimedOut)))
		require.Equal(t, 1.0, testutil.ToFloat64(m.lenderResolves.WithLabelValues(OutcomeAuthFailure)))
		require.Equal(t, 1.0, testutil.ToFloat64(m.remoteMutations.WithLabelValues("authorize_device")))
	})

	t.Run("nil metrics are noop", func(t *testing.T) {
		var m *Metrics

		require.NotPanics(t, func() {
			m.ObserveSteamCall("x", OutcomeOK, time.Second)
			m.QRLogin(OutcomeOK)
			m.LenderResolved(OutcomeOK)
			m.RemoteMutation("x")
		})
	})

	t.Run("handler exposes metrics", func(t *testing.T) {
		m := New()
		m.QRLogin(OutcomeOK)

		srv := httptest.NewServer(m.Handler())
		defer srv.Close()

		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		defer resp.Body.Close() //nolint:errcheck

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(body), `fireshare_qr_logins_total{outcome="ok"} 1`)
	})
}
