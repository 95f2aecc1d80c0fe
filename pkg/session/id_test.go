package session

import (
	"net/url"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{6}$`)

func TestNewSessionID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewSessionID()
		assert.Regexp(t, hexID, id)
		seen[id] = struct{}{}
	}
	// 100 draws from 2^24 should practically never collide
	assert.Greater(t, len(seen), 95)
}

func TestNewStationID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewStationID()
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(1), parsed.Version())
		_, dup := seen[id]
		require.False(t, dup, "duplicate station id %s", id)
		seen[id] = struct{}{}
	}
}

func TestMobileURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/login?sessionId=a1b2c3", MobileURL("http://localhost:3000/", "a1b2c3"))

	id, err := SessionIDFromURL(MobileURL("https://demo.example.com", "ff00aa"))
	require.NoError(t, err)
	assert.Equal(t, "ff00aa", id)
}

func TestSessionIDFromURLMissing(t *testing.T) {
	_, err := SessionIDFromURL("https://demo.example.com/login")
	assert.ErrorIs(t, err, ErrNoSessionID)

	_, err = SessionIDFromURL("://bad")
	assert.Error(t, err)
}

func TestQRCodeURL(t *testing.T) {
	raw := QRCodeURL(MobileURL("http://localhost:3000", "a1b2c3"))
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "api.qrserver.com", u.Host)
	assert.Equal(t, "http://localhost:3000/login?sessionId=a1b2c3", u.Query().Get("data"))
	assert.Equal(t, "200x200", u.Query().Get("size"))
}
