package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &DB{Driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM adoptions WHERE id=$1 AND status=$2", pg.Rebind("SELECT * FROM adoptions WHERE id=? AND status=?"))
	assert.Equal(t, "UPDATE x SET reason='why?' WHERE id=$1", pg.Rebind("UPDATE x SET reason='why?' WHERE id=?"))

	lite := &DB{Driver: DriverSQLite}
	assert.Equal(t, "SELECT 1 WHERE id=?", lite.Rebind("SELECT 1 WHERE id=?"))
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", (&DB{Driver: DriverPostgres}).ForUpdate())
	assert.Equal(t, "", (&DB{Driver: DriverSQLite}).ForUpdate())
}

func TestOpenSQLiteCreatesWorkspace(t *testing.T) {
	dir := t.TempDir()
	conn, err := Open(Config{Workspace: dir})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.Ping())
	assert.FileExists(t, Path(dir))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	_, err = Open(Config{Driver: DriverPostgres})
	require.Error(t, err)
}
