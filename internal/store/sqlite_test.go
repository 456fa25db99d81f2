package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteCreateAndGetProject(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created, err := s.CreateProject(ctx, "apollo")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.ChannelID)
	assert.NotEqual(t, created.ID, created.ChannelID)
	assert.NotZero(t, created.CreatedAt)

	got, err := s.GetProject(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "apollo", got.Name)
	assert.Equal(t, created.ChannelID, got.ChannelID)

	byName, err := s.GetProjectByName(ctx, "apollo")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, created.ID, byName.ID)
}

func TestSQLiteDuplicateName(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, "apollo")
	require.NoError(t, err)

	_, err = s.CreateProject(ctx, "apollo")
	assert.ErrorIs(t, err, ErrProjectExists)
}

func TestSQLiteGetAbsentProject(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	got, err := s.GetProject(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	byName, err := s.GetProjectByName(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, byName)
}

func TestSQLiteListProjects(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = s.CreateProject(ctx, "apollo")
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "gemini")
	require.NoError(t, err)

	projects, err = s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
}

func TestSQLiteDeleteProject(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	created, err := s.CreateProject(ctx, "apollo")
	require.NoError(t, err)

	deleted, err := s.DeleteProject(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := s.GetProject(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting again reports not found
	deleted, err = s.DeleteProject(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestSQLitePing(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Ping(context.Background()))
}
