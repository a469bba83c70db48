package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCreatesLevelFiles(t *testing.T) {
	dir := t.TempDir()
	infoFile := filepath.Join(dir, "info.log")
	errFile := filepath.Join(dir, "err.log")

	err := NewBuilder().
		AddLevelFile(INFO, infoFile).
		AddLevelFile(ERROR, errFile).
		SetLevel(DEBUG).
		Build()
	require.NoError(t, err)
	defer Close()

	Info().Str("market", "ETH-USD").Msg("info line")
	Warn().Msg("warn line")
	Error().Msg("error line")

	info, err := os.ReadFile(infoFile)
	require.NoError(t, err)
	errs, err := os.ReadFile(errFile)
	require.NoError(t, err)

	// warn 没有单独文件，落到 info
	assert.True(t, strings.Contains(string(info), "info line"))
	assert.True(t, strings.Contains(string(info), "warn line"))
	assert.False(t, strings.Contains(string(info), "error line"))
	assert.True(t, strings.Contains(string(errs), "error line"))
}

func TestDefaultFilesUseServiceDir(t *testing.T) {
	files := Config{Service: "perp_indexer"}.files()
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join("logs", "perp_indexer", "err.log"), files[0].Path)
	assert.Equal(t, filepath.Join("logs", "perp_indexer", "info.log"), files[1].Path)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "info", parseLevel("nonsense").String())
	assert.Equal(t, "fatal", parseLevel(FATAL).String())
}
