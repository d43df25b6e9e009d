package webapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/steam"
	"github.com/nkiryanov/fireshare/internal/steamid"
)

const deviceAuthService = "IDeviceAuthService"

type session struct {
	client      *Client
	steamID     string
	accessToken string
	closed      atomic.Bool
}

var _ steam.Session = (*session)(nil)

func (s *session) SteamID() string {
	return s.steamID
}

func (s *session) params() url.Values {
	params := url.Values{}
	params.Set("access_token", s.accessToken)
	params.Set("steamid", s.steamID)
	return params
}

func (s *session) call(ctx context.Context, httpMethod string, method string, params url.Values, out any) error {
	if s.closed.Load() {
		return newError(CodeUnknown, method, 0, 0, errSessionClosed)
	}
	return s.client.call(ctx, httpMethod, deviceAuthService, method, params, out)
}

func (s *session) AuthorizedDevices(ctx context.Context) ([]models.AuthorizedDevice, error) {
	var resp struct {
		Devices []struct {
			DeviceToken    flexString `json:"auth_device_token"`
			DeviceName     string     `json:"device_name"`
			IsCanceled     bool       `json:"is_canceled"`
			LastTimeUsed   int64      `json:"last_time_used"`
			LastBorrowerID flexString `json:"last_borrower_id"`
		} `json:"devices"`
	}

	params := s.params()
	params.Set("include_canceled", "true")

	if err := s.call(ctx, http.MethodGet, "GetOwnAuthorizedDevices", params, &resp); err != nil {
		return nil, err
	}

	devices := make([]models.AuthorizedDevice, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		device := models.AuthorizedDevice{
			DeviceName:     d.DeviceName,
			DeviceToken:    string(d.DeviceToken),
			LastBorrowerID: string(d.LastBorrowerID),
			IsRevoked:      d.IsCanceled,
		}
		if d.LastTimeUsed > 0 {
			usedAt := time.Unix(d.LastTimeUsed, 0).UTC()
			device.LastUsedAt = &usedAt
		}
		if device.LastBorrowerID == "0" {
			device.LastBorrowerID = ""
		}
		devices = append(devices, device)
	}

	return devices, nil
}

func (s *session) AuthorizedBorrowers(ctx context.Context) ([]string, error) {
	var resp struct {
		Borrowers []struct {
			SteamID    flexString `json:"steamid"`
			IsCanceled bool       `json:"is_canceled"`
		} `json:"borrowers"`
	}

	params := s.params()
	params.Set("include_canceled", "false")

	if err := s.call(ctx, http.MethodGet, "GetAuthorizedBorrowers", params, &resp); err != nil {
		return nil, err
	}

	borrowers := make([]string, 0, len(resp.Borrowers))
	for _, b := range resp.Borrowers {
		if b.IsCanceled {
			continue
		}
		borrowers = append(borrowers, string(b.SteamID))
	}

	return borrowers, nil
}

func (s *session) AuthorizeDevice(ctx context.Context, deviceName string) (string, error) {
	var resp struct {
		DeviceToken flexString `json:"authed_device_token"`
	}

	owner, err := steamid.Parse(s.steamID)
	if err != nil {
		return "", err
	}

	params := s.params()
	params.Set("device_description", deviceName)
	params.Set("owner_account_id", strconv.FormatUint(uint64(owner.AccountID()), 10))

	if err := s.call(ctx, http.MethodPost, "AuthorizeLocalDevice", params, &resp); err != nil {
		return "", err
	}

	return string(resp.DeviceToken), nil
}

func (s *session) AddAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error {
	return s.call(ctx, http.MethodPost, "AddAuthorizedBorrowers", s.borrowerParams(borrowerIDs), nil)
}

func (s *session) RemoveAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error {
	return s.call(ctx, http.MethodPost, "RemoveAuthorizedBorrowers", s.borrowerParams(borrowerIDs), nil)
}

func (s *session) borrowerParams(borrowerIDs []string) url.Values {
	params := s.params()
	for i, id := range borrowerIDs {
		params.Set("steamid_borrower["+strconv.Itoa(i)+"]", id)
	}
	return params
}

// Access tokens are short lived and Steam has nothing to close.
// Dropping the token makes sure the session can't be reused.
func (s *session) Close(_ context.Context) error {
	s.closed.Store(true)
	s.accessToken = ""
	return nil
}
