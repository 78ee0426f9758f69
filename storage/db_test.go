package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDBRoundTrip(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("treasury/reserve/tusd"), []byte("1000")))
	value, err := db.Get([]byte("treasury/reserve/tusd"))
	require.NoError(t, err)
	require.Equal(t, []byte("1000"), value)

	_, err = db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemDBCopiesValues(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	value := []byte("original")
	require.NoError(t, db.Put([]byte("key"), value))
	value[0] = 'X'

	stored, err := db.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), stored)
}

func TestLevelDBRoundTrip(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put([]byte("treasury/reserve/tusd"), []byte("1623")))
	value, err := db.Get([]byte("treasury/reserve/tusd"))
	require.NoError(t, err)
	require.Equal(t, []byte("1623"), value)

	_, err = db.Get([]byte("absent"))
	require.ErrorIs(t, err, ErrKeyNotFound)
}
