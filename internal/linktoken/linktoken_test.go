package linktoken

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParseRoundTrip(t *testing.T) {
	cases := []struct {
		uid  int64
		days int
	}{
		{1, 1},
		{123, 30},
		{726773708, 365},
		{9007199254740993, 90},
	}

	for _, tc := range cases {
		token := Build(tc.uid, tc.days, "s3cret")
		claims, ok := Parse(token, "s3cret")
		require.True(t, ok, token)
		assert.Equal(t, Claims{UserID: tc.uid, Days: tc.days}, claims)
	}
}

func TestBuildFormat(t *testing.T) {
	token := Build(123, 30, "s3cret")
	parts := strings.Split(token, ":")

	require.Len(t, parts, 4)
	assert.Equal(t, "swb", parts[0])
	assert.Equal(t, "123", parts[1])
	assert.Equal(t, "30", parts[2])
	assert.Len(t, parts[3], 64)
	assert.Equal(t, token, Build(123, 30, "s3cret"))
}

func TestParseWrongSecret(t *testing.T) {
	token := Build(123, 30, "s3cret")

	_, ok := Parse(token, "wrong")
	assert.False(t, ok)

	_, ok = Parse(token, "")
	assert.False(t, ok)
}

func TestParseEveryMacFlipFailsClosed(t *testing.T) {
	token := Build(123, 30, "s3cret")
	macStart := strings.LastIndex(token, ":") + 1

	for i := macStart; i < len(token); i++ {
		b := []byte(token)
		if b[i] == 'a' {
			b[i] = 'b'
		} else {
			b[i] = 'a'
		}

		claims, ok := Parse(string(b), "s3cret")
		assert.False(t, ok, "flip at %d", i)
		assert.Equal(t, Claims{}, claims)
	}
}

func TestParseTamperedClaims(t *testing.T) {
	token := Build(123, 30, "s3cret")

	_, ok := Parse(strings.Replace(token, ":30:", ":300:", 1), "s3cret")
	assert.False(t, ok)

	_, ok = Parse(strings.Replace(token, "swb:123:", "swb:124:", 1), "s3cret")
	assert.False(t, ok)
}

func TestParseMalformed(t *testing.T) {
	mac := strings.Split(Build(123, 30, "s3cret"), ":")[3]

	for _, token := range []string{
		"",
		"   ",
		"swb",
		"swb:123:30",
		"xyz:123:30:" + mac,
		"swb:abc:30:" + mac,
		"swb:123:thirty:" + mac,
		"swb:0:30:" + mac,
		"swb:123:-30:" + mac,
		"swb:0123:30:" + mac,
		"swb:123:30:" + mac + ":extra",
		"SWB:123:30:" + mac,
	} {
		_, ok := Parse(token, "s3cret")
		assert.False(t, ok, token)
	}
}

func TestParseToleratesOneLevelOfPercentEncoding(t *testing.T) {
	token := Build(42, 90, "k")

	claims, ok := Parse(url.QueryEscape(token), "k")
	require.True(t, ok)
	assert.Equal(t, Claims{UserID: 42, Days: 90}, claims)

	claims, ok = Parse("  "+token+"\n", "k")
	require.True(t, ok)
	assert.Equal(t, int64(42), claims.UserID)

	_, ok = Parse(url.QueryEscape(url.QueryEscape(token)), "k")
	assert.False(t, ok)
}
