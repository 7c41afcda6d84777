package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/a//b/": "/a/b",
		"a/b":    "/a/b",
		"/a/b":   "/a/b",
		"/":      "/",
		"":       "/",
		"//":     "/",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizePath(in), "input %q", in)
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	inputs := []string{"/a//b/", "a/b", "/a/b/c/", "///", "/x/y//z"}
	for _, p := range inputs {
		once := NormalizePath(p)
		twice := NormalizePath(once)
		assert.Equal(t, once, twice, "not idempotent for %q", p)
	}
}

func TestKeyFor(t *testing.T) {
	k := KeyFor("/api/users/", "get")
	require.Equal(t, AggregationKey{Path: "/api/users", Method: "GET"}, k)
}

func TestTelemetryRecordValid(t *testing.T) {
	r := TelemetryRecord{Path: "/x", Method: "GET", RequestID: "r1"}
	assert.True(t, r.Valid())
	assert.False(t, TelemetryRecord{Path: "/x"}.Valid())
}

func TestIsError(t *testing.T) {
	assert.True(t, TelemetryRecord{StatusCode: 500}.IsError())
	assert.True(t, TelemetryRecord{StatusCode: 404}.IsError())
	assert.False(t, TelemetryRecord{StatusCode: 200}.IsError())
}
