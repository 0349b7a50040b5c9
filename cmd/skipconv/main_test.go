package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/skipstore"
)

func seedStore(t *testing.T, path string, flags skipstore.Flag, data map[string]string) {
	t.Helper()
	h, err := skipstore.Open(path, flags|skipstore.Create|skipstore.OrderedBytes)
	require.NoError(t, err)
	defer h.Close()
	for k, v := range data {
		require.NoError(t, skipstore.Store(h, []byte(k), []byte(v), nil))
	}
}

func readAll(t *testing.T, path string) map[string]string {
	t.Helper()
	h, err := skipstore.Open(path, skipstore.OrderedBytes)
	require.NoError(t, err)
	defer h.Close()
	got := make(map[string]string)
	err = skipstore.Foreach(h, nil, nil, func(key, value []byte) (bool, error) {
		got[string(key)] = string(value)
		return true, nil
	})
	require.NoError(t, err)
	return got
}

// S10: converting a current-format store to legacy and back round-trips
// every key, verified against an in-memory reference built independently
// of either on-disk copy.
func TestConvertRoundTripCurrentToLegacyToCurrent(t *testing.T) {
	dir := t.TempDir()
	want := map[string]string{"a": "1", "b": "2", "c": "3", "zz": "last"}

	srcPath := filepath.Join(dir, "current.skip")
	seedStore(t, srcPath, 0, want)

	legacyPath := filepath.Join(dir, "legacy.skip")
	require.NoError(t, convert(job{Src: srcPath, Dst: legacyPath, Legacy: true}))

	if diff := cmp.Diff(want, readAll(t, legacyPath)); diff != "" {
		t.Fatalf("legacy copy mismatch (-want +got):\n%s", diff)
	}

	roundTripPath := filepath.Join(dir, "roundtrip.skip")
	require.NoError(t, convert(job{Src: legacyPath, Dst: roundTripPath}))

	if diff := cmp.Diff(want, readAll(t, roundTripPath)); diff != "" {
		t.Fatalf("round-trip copy mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := convert(job{Src: filepath.Join(dir, "absent.skip"), Dst: filepath.Join(dir, "dst.skip")})
	require.Error(t, err)
}

func TestLoadJobFileParsesJWCCWithComments(t *testing.T) {
	dir := t.TempDir()
	jobPath := filepath.Join(dir, "jobs.jwcc")
	contents := `{
  // two conversions in one run
  "jobs": [
    {"src": "a.skip", "dst": "b.skip", "legacy": true},
    {"src": "b.skip", "dst": "c.skip"}, // trailing comma is fine in JWCC
  ],
}
`
	require.NoError(t, os.WriteFile(jobPath, []byte(contents), 0644))

	jobs, err := loadJobFile(jobPath)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.True(t, jobs[0].Legacy)
	require.False(t, jobs[1].Legacy)
}
