package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var captured = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func testStore(t *testing.T) *CookieStore {
	t.Helper()
	cs := NewCookieStore(filepath.Join(t.TempDir(), "nested", "session.json"))
	cs.now = func() time.Time { return captured }
	return cs
}

func sessionCookies(authExpiry, csrfExpiry time.Time) []*network.Cookie {
	return []*network.Cookie{
		{Name: CookieAuthToken, Value: "tok", Domain: ".x.com", Path: "/", Expires: float64(authExpiry.Unix())},
		{Name: CookieCSRF, Value: "csrf", Domain: "x.com", Path: "/", Expires: float64(csrfExpiry.Unix())},
		{Name: "guest_id", Value: "g", Domain: ".twitter.com", Path: "/"},
		{Name: "lang", Value: "en", Domain: "api.x.com", Path: "/"},
	}
}

func TestCookieStoreRoundTrip(t *testing.T) {
	cs := testStore(t)
	auth := captured.Add(30 * 24 * time.Hour)
	csrf := captured.Add(10 * 24 * time.Hour)

	require.NoError(t, cs.Save(sessionCookies(auth, csrf)))

	info, err := os.Stat(cs.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	stored, err := cs.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Cookies, 4)
	assert.True(t, stored.ExpiresAt.Equal(csrf), "earliest auth cookie expiry wins")
	assert.True(t, stored.CapturedAt.Equal(captured))
	assert.True(t, cs.IsValid())
}

func TestCookieStoreExpired(t *testing.T) {
	cs := testStore(t)
	require.NoError(t, cs.Save(sessionCookies(captured.Add(time.Hour), captured.Add(time.Hour))))

	cs.now = func() time.Time { return captured.Add(2 * time.Hour) }
	assert.False(t, cs.IsValid())
}

func TestCookieStoreMissingCSRF(t *testing.T) {
	cs := testStore(t)
	require.NoError(t, cs.Save([]*network.Cookie{
		{Name: CookieAuthToken, Value: "tok", Domain: ".x.com", Expires: float64(captured.Add(time.Hour).Unix())},
	}))
	assert.False(t, cs.IsValid())
}

func TestCookieStoreGetXCookies(t *testing.T) {
	cs := testStore(t)
	require.NoError(t, cs.Save(sessionCookies(captured.Add(time.Hour), captured.Add(time.Hour))))

	cookies, err := cs.GetXCookies()
	require.NoError(t, err)

	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{CookieAuthToken, CookieCSRF, "lang"}, names)
}

func TestCookieStoreNoSession(t *testing.T) {
	cs := testStore(t)

	_, err := cs.Load()
	assert.ErrorIs(t, err, ErrNoSession)
	assert.False(t, cs.IsValid())
	assert.NoError(t, cs.Clear())
}

func TestCookieStoreClear(t *testing.T) {
	cs := testStore(t)
	require.NoError(t, cs.Save(sessionCookies(captured.Add(time.Hour), captured.Add(time.Hour))))
	require.NoError(t, cs.Clear())

	_, err := os.Stat(cs.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestIsHomeTimeline(t *testing.T) {
	assert.True(t, isHomeTimeline("https://x.com/home"))
	assert.True(t, isHomeTimeline("https://x.com/home/"))
	assert.True(t, isHomeTimeline("https://twitter.com/home"))
	assert.False(t, isHomeTimeline("https://x.com/login"))
}
