// Package setupscript renders the script a borrower runs to install a shared device
package setupscript

import (
	"bufio"
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

//go:embed template.bat
var template string

var (
	ErrInvalidValue = errors.New("value can't be put into setup script")
	ErrNotAScript   = errors.New("not a setup script")
)

// Values are printed inside double quotes of batch 'set' commands
var safeValue = regexp.MustCompile(`^[A-Za-z0-9 _:.\-\[\]]+$`)

var setLine = regexp.MustCompile(`^set "FFS_([A-Z_]+)=(.*)"$`)

type Params struct {
	LenderID    string // steam64 of the lender, used in file name only
	SteamID     string // short steam id of the lender
	DeviceToken string
	DeviceName  string
}

type Script struct {
	Filename string
	Content  []byte
}

func Render(p Params) (Script, error) {
	for _, v := range []string{p.SteamID, p.DeviceToken, p.DeviceName} {
		if !safeValue.MatchString(v) {
			return Script{}, fmt.Errorf("%w: %q", ErrInvalidValue, v)
		}
	}

	content := strings.NewReplacer(
		"%STEAM_ID%", p.SteamID,
		"%DEVICE_TOKEN%", p.DeviceToken,
		"%DEVICE_NAME%", p.DeviceName,
	).Replace(template)

	return Script{
		Filename: Filename(p.LenderID, p.DeviceToken, p.DeviceName),
		Content:  []byte(content),
	}, nil
}

// addShare-<lender id>-<device token>-<device name with spaces replaced>.bat
func Filename(lenderID string, deviceToken string, deviceName string) string {
	return fmt.Sprintf("addShare-%s-%s-%s.bat", lenderID, deviceToken, strings.ReplaceAll(deviceName, " ", "_"))
}

// Read values back from rendered script. LenderID is not part of the content.
func Parse(content []byte) (Params, error) {
	values := make(map[string]string, 3)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		m := setLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}
		values[m[1]] = m[2]
	}
	if err := scanner.Err(); err != nil {
		return Params{}, err
	}

	p := Params{
		SteamID:     values["STEAM_ID"],
		DeviceToken: values["DEVICE_TOKEN"],
		DeviceName:  values["DEVICE_NAME"],
	}
	if p.SteamID == "" || p.DeviceToken == "" || p.DeviceName == "" {
		return Params{}, ErrNotAScript
	}

	return p, nil
}
