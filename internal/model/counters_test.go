package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTableDecodesExactRowCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.csv")
	csv := "event_code,umask,koeff\n"
	for i := 0; i < NumCounters; i++ {
		csv += "60,0,100\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)
	for _, row := range table {
		assert.Equal(t, uint8(60), row.EventCode)
		assert.Equal(t, int64(100), row.Koeff)
	}
}

func TestLoadTableRejectsShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.csv")
	require.NoError(t, os.WriteFile(path, []byte("event_code,umask,koeff\n60,0,100\n"), 0o644))

	_, err := LoadTable(path)
	assert.Error(t, err)
}
