package webapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nkiryanov/fireshare/internal/steam"
)

const (
	authService       = "IAuthenticationService"
	defaultQRInterval = 5 * time.Second
)

var _ steam.Authenticator = (*Client)(nil)

// Exchange refresh token to access token and open a session with it
func (c *Client) Authenticate(ctx context.Context, steamID string, refreshToken string) (steam.Session, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
	}

	params := url.Values{}
	params.Set("refresh_token", refreshToken)
	params.Set("steamid", steamID)

	err := c.call(ctx, http.MethodPost, authService, "GenerateAccessTokenForApp", params, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, newError(CodeAuth, "GenerateAccessTokenForApp", http.StatusOK, eresultOK, errors.New("empty access token"))
	}

	return &session{client: c, steamID: steamID, accessToken: resp.AccessToken}, nil
}

func (c *Client) StartWithQR(ctx context.Context) (steam.QRStart, error) {
	var resp struct {
		ClientID             flexString `json:"client_id"`
		ChallengeURL         string     `json:"challenge_url"`
		RequestID            string     `json:"request_id"`
		Interval             float64    `json:"interval"`
		Version              int        `json:"version"`
		AllowedConfirmations []struct {
			ConfirmationType int `json:"confirmation_type"`
		} `json:"allowed_confirmations"`
	}

	params := url.Values{}
	params.Set("device_friendly_name", c.deviceName)
	params.Set("platform_type", strconv.Itoa(steam.PlatformSteamClient))

	err := c.call(ctx, http.MethodPost, authService, "BeginAuthSessionViaQR", params, &resp)
	if err != nil {
		return steam.QRStart{}, err
	}

	requestID, err := base64.StdEncoding.DecodeString(resp.RequestID)
	if err != nil {
		return steam.QRStart{}, newError(CodeTransport, "BeginAuthSessionViaQR", http.StatusOK, eresultOK, fmt.Errorf("invalid request id: %w", err))
	}

	interval := time.Duration(resp.Interval * float64(time.Second))
	if interval <= 0 {
		interval = defaultQRInterval
	}

	confirmations := make([]string, 0, len(resp.AllowedConfirmations))
	for _, conf := range resp.AllowedConfirmations {
		confirmations = append(confirmations, strconv.Itoa(conf.ConfirmationType))
	}

	return steam.QRStart{
		ClientID:             string(resp.ClientID),
		RequestID:            requestID,
		PollInterval:         interval,
		ChallengeURL:         resp.ChallengeURL,
		Version:              resp.Version,
		AllowedConfirmations: confirmations,
	}, nil
}

func (c *Client) PollQR(ctx context.Context, clientID string, requestID []byte) (steam.QRPoll, error) {
	var resp struct {
		NewChallengeURL string `json:"new_challenge_url"`
		RefreshToken    string `json:"refresh_token"`
		AccountName     string `json:"account_name"`
	}

	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("request_id", base64.StdEncoding.EncodeToString(requestID))

	err := c.call(ctx, http.MethodPost, authService, "PollAuthSessionStatus", params, &resp)

	var steamErr *Error
	switch {
	case errors.As(err, &steamErr) && steamErr.EResult == eresultFileNotFound:
		return steam.QRPoll{Status: steam.QRExpired}, nil
	case errors.As(err, &steamErr) && steamErr.EResult == eresultAccessDenied:
		return steam.QRPoll{Status: steam.QRRejected}, nil
	case err != nil:
		return steam.QRPoll{}, err
	case resp.RefreshToken == "":
		return steam.QRPoll{Status: steam.QRPending, NewChallengeURL: resp.NewChallengeURL}, nil
	}

	steamID, err := subjectOf(resp.RefreshToken)
	if err != nil {
		return steam.QRPoll{}, newError(CodeTransport, "PollAuthSessionStatus", http.StatusOK, eresultOK, err)
	}

	return steam.QRPoll{
		Status:       steam.QRConfirmed,
		SteamID:      steamID,
		AccountName:  resp.AccountName,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// Steam refresh tokens are JWTs issued for the account in 'sub' claim.
// The signature can't be verified here, Steam does it when token is used.
func subjectOf(refreshToken string) (string, error) {
	claims := jwt.RegisteredClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(refreshToken, &claims)
	if err != nil {
		return "", fmt.Errorf("refresh token is not a jwt: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("refresh token has no subject")
	}
	return claims.Subject, nil
}
