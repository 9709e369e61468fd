package gateway

import (
	"context"
	"fmt"
	"testing"

	"github.com/cuemby/mirror/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDBScanSinceFilters(t *testing.T) {
	db := NewMemoryDB()
	db.SeedDoc("appointments", "a1", map[string]interface{}{"updatedAt": "2024-01-01T00:00:01Z"})
	db.SeedDoc("appointments", "a2", map[string]interface{}{"updatedAt": "2024-01-01T00:00:02Z"})
	db.SeedDoc("appointments", "a3", map[string]interface{}{"updatedAt": "2024-01-01T00:00:03Z"})

	var seen []string
	since := types.NormalizeTimestamp("2024-01-01T00:00:01Z")
	err := db.ScanSince(context.Background(), "appointments", since, func(d types.Document) error {
		seen = append(seen, d.ID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a3"}, seen)
}

func TestMemoryDBScanAllWhenNoSince(t *testing.T) {
	db := NewMemoryDB()
	db.SeedDoc("c", "x", map[string]interface{}{"name": "no timestamp"})
	db.SeedDoc("c", "y", map[string]interface{}{"updatedAt": "2024-01-01T00:00:01Z"})

	var seen []string
	err := db.ScanSince(context.Background(), "c", "", func(d types.Document) error {
		seen = append(seen, d.ID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, seen)
}

func TestMemoryDBBatchWriteMerges(t *testing.T) {
	db := NewMemoryDB()
	db.SeedDoc("c", "doc", map[string]interface{}{"keep": "me", "replace": "old"})

	err := db.BatchWrite(context.Background(), "c", []types.Document{
		{ID: "doc", Data: map[string]interface{}{"replace": "new"}},
	})
	require.NoError(t, err)

	data, ok := db.GetDoc("c", "doc")
	require.True(t, ok)
	assert.Equal(t, "me", data["keep"])
	assert.Equal(t, "new", data["replace"])
}

func TestMemoryDBBatchWriteRejectsOversize(t *testing.T) {
	db := NewMemoryDB()
	docs := make([]types.Document, MaxBatchWrite+1)
	for i := range docs {
		docs[i] = types.Document{ID: fmt.Sprintf("d%04d", i), Data: map[string]interface{}{}}
	}

	err := db.BatchWrite(context.Background(), "c", docs)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestMemoryDBUnavailable(t *testing.T) {
	db := NewMemoryDB()
	db.SetUnavailable(true)

	_, err := db.ListCollections(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, db.Probe(context.Background()), ErrUnavailable)

	db.SetUnavailable(false)
	assert.NoError(t, db.Probe(context.Background()))
}

func TestMemoryDirectoryPagination(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.PageSize = 2
	for i := 0; i < 5; i++ {
		dir.SeedUser(types.User{UID: fmt.Sprintf("u%d", i)})
	}

	var all []string
	token := ""
	pages := 0
	for {
		users, next, err := dir.ListUsers(context.Background(), token)
		require.NoError(t, err)
		pages++
		for _, u := range users {
			all = append(all, u.UID)
		}
		if next == "" {
			break
		}
		token = next
	}

	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"u0", "u1", "u2", "u3", "u4"}, all)
}

func TestMemoryDirectoryImportUpsertsAndReportsFailures(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.ImportFailUIDs = map[string]string{"bad": "malformed email"}

	result, err := dir.ImportUsers(context.Background(), []types.User{
		{UID: "ok", Email: "ok@example.com"},
		{UID: "bad"},
	}, types.HashParams{Algorithm: "SCRYPT"})

	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 1, result.Errors[0].Index)
	assert.Equal(t, "malformed email", result.Errors[0].Reason)
	assert.Equal(t, "SCRYPT", dir.LastHash.Algorithm)

	u, err := dir.GetUser(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok@example.com", u.Email)
}

func TestMemoryDirectorySetCustomClaims(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.SeedUser(types.User{UID: "u1"})

	claims := map[string]interface{}{"role": "admin"}
	require.NoError(t, dir.SetCustomClaims(context.Background(), "u1", claims))
	assert.Equal(t, 1, dir.ClaimsCalls)

	u, err := dir.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, claims, u.CustomClaims)

	err = dir.SetCustomClaims(context.Background(), "ghost", claims)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGatewaysSideSelection(t *testing.T) {
	primary, standby := NewMemoryDB(), NewMemoryDB()
	gw := &Gateways{PrimaryDB: primary, StandbyDB: standby}

	assert.Same(t, primary, gw.DB(types.SidePrimary).(*MemoryDB))
	assert.Same(t, standby, gw.DB(types.SideStandby).(*MemoryDB))
}
