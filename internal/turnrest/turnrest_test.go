package turnrest

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func fixedGenerator(t *testing.T) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{
		SharedSecret:   "shared-secret",
		TTL:            time.Hour,
		UsernamePrefix: "hanasu",
		Now:            func() time.Time { return time.Unix(1_700_000_000, 0) },
		SessionID:      func() string { return "session123" },
	})
	require.NoError(t, err)
	return g
}

func expectedCredential(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestGenerateIsDeterministicForFixedClock(t *testing.T) {
	creds, err := fixedGenerator(t).Generate("session123")
	require.NoError(t, err)

	require.Equal(t, "1700003600:hanasu:session123", creds.Username)
	require.Equal(t, expectedCredential("shared-secret", creds.Username), creds.Credential)
	require.Equal(t, int64(1_700_003_600), creds.Expires.Unix())
}

func TestGenerateRejectsBadSessionIDs(t *testing.T) {
	g := fixedGenerator(t)
	for _, id := range []string{"", "a:b"} {
		_, err := g.Generate(id)
		require.Error(t, err, "session id %q", id)
	}
}

func TestNewGeneratorValidates(t *testing.T) {
	for name, cfg := range map[string]Config{
		"no secret":    {TTL: time.Hour, UsernamePrefix: "p"},
		"short ttl":    {SharedSecret: "s", TTL: time.Millisecond, UsernamePrefix: "p"},
		"no prefix":    {SharedSecret: "s", TTL: time.Hour},
		"colon prefix": {SharedSecret: "s", TTL: time.Hour, UsernamePrefix: "a:b"},
	} {
		_, err := NewGenerator(cfg)
		require.Error(t, err, name)
	}
}

func TestApplyFillsOnlyBareTURNServers(t *testing.T) {
	in := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478?transport=udp"}},
		{URLs: []string{"turns:turn.example.com:5349"}},
		{URLs: []string{"turn:static.example.com:3478"}, Username: "static", Credential: "pw"},
	}

	out, err := fixedGenerator(t).Apply(in)
	require.NoError(t, err)
	require.Len(t, out, 4)

	require.Empty(t, out[0].Username)
	require.Equal(t, "1700003600:hanasu:session123", out[1].Username)
	require.Equal(t, out[1].Username, out[2].Username)
	require.Equal(t, out[1].Credential, out[2].Credential)
	require.Equal(t, "static", out[3].Username)

	require.Empty(t, in[1].Username, "input must not be modified")
}
