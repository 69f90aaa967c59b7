package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_OpensWALFileWithSingleWriter(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode string
	require.NoError(t, db.Reader.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	assert.Equal(t, 1, db.Writer.Stats().MaxOpenConnections)
	assert.Equal(t, 4, db.Reader.Stats().MaxOpenConnections)
}

func TestDB_CloseClosesBothPools(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "panel.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())

	assert.Error(t, db.Writer.Ping())
	assert.Error(t, db.Reader.Ping())
}
