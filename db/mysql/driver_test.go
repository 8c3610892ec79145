package mysql

import (
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN_ForcesTimeHandling(t *testing.T) {
	out, err := normalizeDSN("app:secret@tcp(db:3306)/progression")
	require.NoError(t, err)

	cfg, err := gomysql.ParseDSN(out)
	require.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, time.UTC, cfg.Loc)
	assert.Equal(t, dialTimeout, cfg.Timeout)
	assert.Equal(t, "progression", cfg.DBName)
}

func TestNormalizeDSN_KeepsExplicitOptions(t *testing.T) {
	out, err := normalizeDSN("app@tcp(db)/p?timeout=2s&parseTime=false")
	require.NoError(t, err)

	cfg, err := gomysql.ParseDSN(out)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.ParseTime, "parseTime is always on")
}

func TestNormalizeDSN_Invalid(t *testing.T) {
	_, err := normalizeDSN("not a dsn")
	assert.Error(t, err)
}
