package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearCmd(t *testing.T) {
	tests := []struct {
		name     string
		distance string
		unit     string
		want     []string
	}{
		{"paris only", "10000", "uom:metre", []string{"http://example.org/eiffel"}},
		{"both cities", "500000", "uom:metre", []string{"http://example.org/eiffel", "http://example.org/bigben"}},
		{"degrees", "1", "uom:degree", []string{"http://example.org/eiffel"}},
		{"nothing close", "10", "uom:metre", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: places loaded
			dir := isolate(t)
			loadPlaces(t, dir)

			// When: searching around Notre-Dame
			out, err := run(t, "--dir", dir, "near", "POINT(2.3499 48.8530)",
				"--distance", tt.distance, "--unit", tt.unit, "--format", "json")

			// Then: nearest first
			require.NoError(t, err)
			var results []searchResult
			require.NoError(t, json.Unmarshal([]byte(out), &results))
			var got []string
			for _, r := range results {
				got = append(got, r.Subject)
				assert.Greater(t, r.Distance, 0.0)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNearCmd_TableShowsDistance(t *testing.T) {
	dir := isolate(t)
	loadPlaces(t, dir)

	out, err := run(t, "--dir", dir, "near", "POINT(2.3499 48.8530)", "--distance", "10000")

	require.NoError(t, err)
	assert.Contains(t, out, "DISTANCE (m)")
	assert.Contains(t, out, "http://example.org/eiffel")
}

func TestNearCmd_RequiresDistance(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "--dir", dir, "near", "POINT(0 0)")

	require.Error(t, err)
}

func TestNearCmd_MalformedPoint(t *testing.T) {
	dir := isolate(t)
	loadPlaces(t, dir)

	_, err := run(t, "--dir", dir, "near", "POINT(oops)", "--distance", "10")

	require.Error(t, err)
}

func TestRelateCmd(t *testing.T) {
	// Given
	dir := isolate(t)
	loadPlaces(t, dir)

	// When: asking what intersects a square around Paris
	out, err := run(t, "--dir", dir, "relate", "POLYGON((2 48, 3 48, 3 49, 2 49, 2 48))",
		"--function", "sfIntersects", "--format", "json")

	// Then
	require.NoError(t, err)
	var subjects []string
	require.NoError(t, json.Unmarshal([]byte(out), &subjects))
	assert.Equal(t, []string{"http://example.org/eiffel"}, subjects)
}

func TestRelateCmd_UnsupportedFunction(t *testing.T) {
	dir := isolate(t)

	_, err := run(t, "--dir", dir, "relate", "POINT(0 0)", "--function", "sfTouches")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported function")
}
