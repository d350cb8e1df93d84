package sqlstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

func TestSQLiteConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, err := OpenSQLite(filepath.Join(t.TempDir(), "pastes.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	}, storagetest.Options{})
}
