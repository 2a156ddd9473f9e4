package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	t.Run("embedded migrations", func(t *testing.T) {
		v, err := latestVersion(migrationsFS)
		require.NoError(t, err)
		assert.Equal(t, uint(4), v)
	})

	t.Run("highest prefix wins", func(t *testing.T) {
		fsys := fstest.MapFS{
			"migrations/000002_b.up.sql":   {},
			"migrations/000010_c.up.sql":   {},
			"migrations/000001_a.down.sql": {},
			"migrations/README":            {},
		}
		v, err := latestVersion(fsys)
		require.NoError(t, err)
		assert.Equal(t, uint(10), v)
	})

	t.Run("bad prefix", func(t *testing.T) {
		fsys := fstest.MapFS{"migrations/abc_x.up.sql": {}}
		_, err := latestVersion(fsys)
		assert.Error(t, err)
	})
}

func TestStatusPending(t *testing.T) {
	assert.True(t, Status{Version: 3, Latest: 4}.Pending())
	assert.False(t, Status{Version: 4, Latest: 4}.Pending())
}
