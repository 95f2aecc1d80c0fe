// Package session generates the identifiers that scope one demo run and derives
// the join URL handed to stations.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// SessionIDBytes is the entropy of a session id. Three bytes render as six hex chars.
const SessionIDBytes = 3

const qrServerURL = "https://api.qrserver.com/v1/create-qr-code/"

var ErrNoSessionID = errors.New("url carries no sessionId")

// NewSessionID returns a short random hex token scoping all topics of one session.
func NewSessionID() string {
	b := make([]byte, SessionIDBytes)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// NewStationID returns a time-based UUID generated locally by a station.
func NewStationID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// MobileURL is the join link encoded into the landing page QR code.
func MobileURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/login?sessionId=%s", strings.TrimRight(baseURL, "/"), url.QueryEscape(sessionID))
}

// SessionIDFromURL extracts the sessionId query parameter from a join link.
func SessionIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse join url: %w", err)
	}
	id := u.Query().Get("sessionId")
	if id == "" {
		return "", ErrNoSessionID
	}
	return id, nil
}

// QRCodeURL returns an image URL rendering data as a QR code.
func QRCodeURL(data string) string {
	q := url.Values{}
	q.Set("data", data)
	q.Set("size", "200x200")
	q.Set("color", "00CB95")
	q.Set("bgcolor", "333333")
	return qrServerURL + "?" + q.Encode()
}
