package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_PrefersStructuredJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD.json"),
		[]byte(`{"direction":"long","entry":1.0850,"stop":1.0800,"tp1":1.0900,"tp2":1.0950,"bias":"bullish","sufficient":true}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD.txt"),
		[]byte("stale text form"), 0o644))

	payload, err := NewFileSource(dir).Latest(context.Background(), "eurusd")
	require.NoError(t, err)
	require.NotNil(t, payload.Structured)
	assert.Equal(t, "long", payload.Structured.Direction)
	assert.Equal(t, 1.0850, payload.Structured.Entry)
	assert.Empty(t, payload.Text)
}

func TestFileSource_FallsBackToText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD.txt"),
		[]byte("1. Direction: LONG\n2. Entry: 1.0850\n"), 0o644))

	payload, err := NewFileSource(dir).Latest(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, payload.Structured)
	assert.Contains(t, payload.Text, "Entry")
}

func TestFileSource_MalformedJSONFallsThrough(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD.json"), []byte("{bad"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EURUSD.txt"), []byte("text form"), 0o644))

	payload, err := NewFileSource(dir).Latest(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, payload.Structured)
	assert.Equal(t, "text form", payload.Text)
}

func TestFileSource_MissingIsNotAnError(t *testing.T) {
	payload, err := NewFileSource(t.TempDir()).Latest(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Nil(t, payload.Structured)
	assert.Empty(t, payload.Text)
}
