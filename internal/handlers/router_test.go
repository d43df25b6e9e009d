package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/repository/memory"
	"github.com/nkiryanov/fireshare/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/fireshare/internal/service/devices"
	"github.com/nkiryanov/fireshare/internal/service/lending"
	"github.com/nkiryanov/fireshare/internal/service/qrlogin"
	"github.com/nkiryanov/fireshare/internal/service/share"
	"github.com/nkiryanov/fireshare/internal/setupscript"
	"github.com/nkiryanov/fireshare/internal/steam"
	"github.com/nkiryanov/fireshare/internal/steam/steamfake"
	"github.com/nkiryanov/fireshare/internal/testutil"
)

const (
	lenderID   = "76561197960287930"
	borrowerID = "76561197960287931"
)

type testServer struct {
	srv     *httptest.Server
	steam   *steamfake.Steam
	storage *memory.Storage
	tokens  *tokenmanager.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	l := logger.NewNoOpLogger()
	m := metrics.New()
	s := steamfake.New()
	storage := memory.NewStorage()

	tokens, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"})
	require.NoError(t, err)

	resolver := devices.NewResolver(s, l, m)
	router := NewRouter(
		tokens,
		share.New(storage, resolver, l, m),
		lending.New(storage, resolver, 2, l),
		qrlogin.New(s, storage, time.Minute, l, m),
		m,
		l,
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, steam: s, storage: storage, tokens: tokens}
}

// Send request as the user, empty userID sends it anonymously
func (ts *testServer) do(t *testing.T, userID string, method string, path string, body string) (*http.Response, string) {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if userID != "" {
		issued, err := ts.tokens.Issue(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+issued.Value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(b)
}

// Lender logged in to Steam, borrower with machine id
func (ts *testServer) users(t *testing.T) {
	t.Helper()

	ts.steam.AddLender(lenderID, steamfake.Lender{RefreshToken: "refresh"})
	require.NoError(t, ts.storage.Credential().SetRefreshToken(t.Context(), lenderID, "refresh"))
	require.NoError(t, ts.storage.Credential().SetMachineID(t.Context(), borrowerID, testutil.MachineID("m")))
}

func TestRouter_Auth(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, "", http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := ts.do(t, lenderID, http.MethodGet, "/api/me", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"steam_id": "76561197960287930", "is_authenticated": false, "has_machine_id": false}`, body)
}

func TestRouter_Metrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "", http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "go_goroutines")
}

func TestRouter_MachineID(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, borrowerID, http.MethodPost, "/api/machine-id", `{"machine_id": "short"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	require.JSONEq(t, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {"machine_id": "Value must be exactly 310 characters long"}
	}`, body)

	// 310 characters, but not 310 bytes
	resp, body = ts.do(t, borrowerID, http.MethodPost, "/api/machine-id", `{"machine_id": "`+strings.Repeat("é", 310)+`"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	require.JSONEq(t, `{
		"error": "validation_failed",
		"message": "Request validation failed",
		"fields": {"machine_id": "Value must contain ASCII characters only"}
	}`, body)

	resp, body = ts.do(t, borrowerID, http.MethodPost, "/api/machine-id", `{"machine_id": "`+testutil.MachineID("m")+`"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, body)

	_, body = ts.do(t, borrowerID, http.MethodGet, "/api/me", "")
	require.JSONEq(t, `{"steam_id": "76561197960287931", "is_authenticated": false, "has_machine_id": true}`, body)
}

func TestRouter_ShareFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.users(t)

	// Borrower can't ask before lender adds the share
	resp, body := ts.do(t, borrowerID, http.MethodPost, "/api/shares/ask", `{"lender": "`+lenderID+`"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, body)

	resp, body = ts.do(t, lenderID, http.MethodPost, "/api/shares/add", `{"borrower": "`+borrowerID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var added ShareResponse
	require.NoError(t, json.Unmarshal([]byte(body), &added))
	require.Equal(t, lenderID, added.LenderID)
	require.Equal(t, borrowerID, added.BorrowerID)

	resp, body = ts.do(t, borrowerID, http.MethodGet, "/api/lenders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.JSONEq(t, `[{
		"lender_id": "76561197960287930",
		"is_authenticated": true,
		"borrower_authorized_device_token": null,
		"borrower_in_current_share_list": false
	}]`, body)

	resp, body = ts.do(t, borrowerID, http.MethodPost, "/api/shares/ask", `{"lender": "`+lenderID+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var asked struct {
		DeviceToken string `json:"device_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &asked))
	require.NotEmpty(t, asked.DeviceToken)

	resp, body = ts.do(t, borrowerID, http.MethodGet, "/api/lenders", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var view []LendInfoResponse
	require.NoError(t, json.Unmarshal([]byte(body), &view))
	require.Len(t, view, 1)
	require.Equal(t, asked.DeviceToken, *view[0].BorrowerAuthorizedDeviceToken)
	require.True(t, view[0].BorrowerInCurrentShareList)

	resp, body = ts.do(t, borrowerID, http.MethodGet, "/api/shares/script?lender="+lenderID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	require.Contains(t, resp.Header.Get("Content-Disposition"), "addShare-"+lenderID+"-"+asked.DeviceToken+"-FireShare_"+borrowerID+".bat")
	params, err := setupscript.Parse([]byte(body))
	require.NoError(t, err)
	require.Equal(t, asked.DeviceToken, params.DeviceToken)

	resp, body = ts.do(t, lenderID, http.MethodGet, "/api/shares", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var shares []ShareInfoResponse
	require.NoError(t, json.Unmarshal([]byte(body), &shares))
	require.Len(t, shares, 1)
	require.Equal(t, borrowerID, shares[0].BorrowerID)
	require.Equal(t, devices.CanonicalName(borrowerID), shares[0].DeviceName)
	require.True(t, shares[0].InUse)

	resp, body = ts.do(t, lenderID, http.MethodPost, "/api/shares/remove", `{"borrower": "`+borrowerID+`", "revoke_remote": true}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode, body)
	require.Empty(t, ts.steam.Lender(lenderID).Borrowers)

	resp, body = ts.do(t, lenderID, http.MethodPost, "/api/shares/remove", `{"borrower": "`+borrowerID+`"}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode, body)
}

func TestRouter_ShareErrors(t *testing.T) {
	t.Run("invalid borrower", func(t *testing.T) {
		ts := newTestServer(t)

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/shares/add", `{"borrower": "gabe"}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
		require.JSONEq(t, `{
			"error": "validation_failed",
			"message": "Request validation failed",
			"fields": {"borrower": "Value is not a steam id"}
		}`, body)
	})

	t.Run("self share", func(t *testing.T) {
		ts := newTestServer(t)

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/shares/add", `{"borrower": "`+lenderID+`"}`)

		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	})

	t.Run("pending auth", func(t *testing.T) {
		ts := newTestServer(t)
		ts.users(t)
		_, err := ts.storage.Share().AddShare(t.Context(), lenderID, borrowerID)
		require.NoError(t, err)
		ts.steam.Fail(lenderID, apperrors.ErrAuthFailure)

		resp, body := ts.do(t, borrowerID, http.MethodPost, "/api/shares/ask", `{"lender": "`+lenderID+`"}`)

		require.Equal(t, http.StatusConflict, resp.StatusCode, body)
	})

	t.Run("steam unavailable", func(t *testing.T) {
		ts := newTestServer(t)
		ts.users(t)
		_, err := ts.storage.Share().AddShare(t.Context(), lenderID, borrowerID)
		require.NoError(t, err)
		ts.steam.Fail(lenderID, apperrors.ErrTransport)

		resp, body := ts.do(t, borrowerID, http.MethodPost, "/api/shares/ask", `{"lender": "`+lenderID+`"}`)

		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, body)
	})

	t.Run("script without lender", func(t *testing.T) {
		ts := newTestServer(t)

		resp, body := ts.do(t, borrowerID, http.MethodGet, "/api/shares/script", "")

		require.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	})
}

func TestRouter_RefreshToken(t *testing.T) {
	t.Run("qr login", func(t *testing.T) {
		ts := newTestServer(t)
		ts.steam.Poll = func(_ string, _ int) (steam.QRPoll, error) {
			return steam.QRPoll{Status: steam.QRConfirmed, SteamID: lenderID, RefreshToken: "fresh"}, nil
		}

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/challenge", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
		var challenge struct {
			ClientID             string   `json:"client_id"`
			ChallengeURL         string   `json:"challenge_url"`
			AllowedConfirmations []string `json:"allowed_confirmations"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &challenge))
		require.Equal(t, ts.steam.QRStart.ClientID, challenge.ClientID)
		require.NotNil(t, challenge.AllowedConfirmations)
		require.Empty(t, challenge.AllowedConfirmations)

		resp, body = ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/complete", `{"client_id": "`+challenge.ClientID+`", "timeout": 5}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		_, body = ts.do(t, lenderID, http.MethodGet, "/api/me", "")
		require.JSONEq(t, `{"steam_id": "76561197960287930", "is_authenticated": true, "has_machine_id": false}`, body)

		resp, body = ts.do(t, lenderID, http.MethodDelete, "/api/refresh-token", "")
		require.Equal(t, http.StatusNoContent, resp.StatusCode, body)

		_, body = ts.do(t, lenderID, http.MethodGet, "/api/me", "")
		require.JSONEq(t, `{"steam_id": "76561197960287930", "is_authenticated": false, "has_machine_id": false}`, body)
	})

	t.Run("rejected", func(t *testing.T) {
		ts := newTestServer(t)
		ts.steam.Poll = func(_ string, _ int) (steam.QRPoll, error) {
			return steam.QRPoll{Status: steam.QRRejected}, nil
		}

		_, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/challenge", "")
		var challenge struct {
			ClientID string `json:"client_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &challenge))

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/complete", `{"client_id": "`+challenge.ClientID+`"}`)

		require.Equal(t, http.StatusForbidden, resp.StatusCode, body)
	})

	t.Run("pending then confirmed", func(t *testing.T) {
		ts := newTestServer(t)
		var scanned atomic.Bool
		ts.steam.Poll = func(_ string, _ int) (steam.QRPoll, error) {
			if scanned.Load() {
				return steam.QRPoll{Status: steam.QRConfirmed, SteamID: lenderID, RefreshToken: "fresh"}, nil
			}
			return steam.QRPoll{Status: steam.QRPending, NewChallengeURL: "https://s.team/q/1/rotated"}, nil
		}

		_, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/challenge", "")
		var challenge struct {
			ClientID  string    `json:"client_id"`
			ExpiresAt time.Time `json:"expires_at"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &challenge))

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/complete", `{"client_id": "`+challenge.ClientID+`", "timeout": 1}`)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, body)
		var pending struct {
			ChallengeURL string    `json:"challenge_url"`
			ExpiresAt    time.Time `json:"expires_at"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &pending))
		require.Equal(t, "https://s.team/q/1/rotated", pending.ChallengeURL)
		require.True(t, challenge.ExpiresAt.Equal(pending.ExpiresAt))

		scanned.Store(true)
		resp, body = ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/complete", `{"client_id": "`+challenge.ClientID+`", "timeout": 5}`)
		require.Equal(t, http.StatusOK, resp.StatusCode, body)

		_, body = ts.do(t, lenderID, http.MethodGet, "/api/me", "")
		require.JSONEq(t, `{"steam_id": "76561197960287930", "is_authenticated": true, "has_machine_id": false}`, body)
	})

	t.Run("cancel", func(t *testing.T) {
		ts := newTestServer(t)

		_, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/challenge", "")
		var challenge struct {
			ClientID string `json:"client_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &challenge))

		resp, body := ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/cancel", `{"client_id": "`+challenge.ClientID+`"}`)
		require.Equal(t, http.StatusNoContent, resp.StatusCode, body)

		resp, body = ts.do(t, lenderID, http.MethodPost, "/api/refresh-token/complete", `{"client_id": "`+challenge.ClientID+`"}`)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, body)
	})
}
