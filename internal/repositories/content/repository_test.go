package content

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sorrel/pkg/database"
	"github.com/Ramsey-B/sorrel/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "sorrel"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func testItem(id int64, title string) *models.Item {
	return &models.Item{ContentCore: models.ContentCore{
		ID:                     &id,
		Publisher:              "bbc.co.uk",
		Title:                  title,
		Aliases:                []models.Alias{{Namespace: "pid", Value: title}},
		FirstSeen:              time.Now().UTC().Truncate(time.Millisecond),
		LastUpdated:            time.Now().UTC().Truncate(time.Millisecond),
		ThisOrChildLastUpdated: time.Now().UTC().Truncate(time.Millisecond),
	}}
}

func TestContentRepository_WriteAndResolve(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := NewRepository(db, getTestLogger())
	ctx := context.Background()

	id := time.Now().UnixNano()
	title := "News at Ten " + time.Now().Format(time.RFC3339Nano)
	item := testItem(id, title)

	require.NoError(t, repo.WriteContent(ctx, item, nil))

	// Resolve by id
	byID, err := repo.ResolveIDs(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, title, byID[0].Core().Title)
	assert.IsType(t, &models.Item{}, byID[0])

	// Resolve by alias, scoped to publisher
	byAlias, err := repo.ResolveAliases(ctx, "bbc.co.uk", item.Core().Aliases)
	require.NoError(t, err)
	require.Len(t, byAlias, 1)
	assert.Equal(t, id, *byAlias[0].Core().ID)

	otherPublisher, err := repo.ResolveAliases(ctx, "itv.com", item.Core().Aliases)
	require.NoError(t, err)
	assert.Empty(t, otherPublisher)

	// Rewrite replaces the payload and the alias index
	updated := item.Copy()
	updated.Core().Title = title + " (updated)"
	updated.Core().Aliases = []models.Alias{{Namespace: "uri", Value: title}}
	require.NoError(t, repo.WriteContent(ctx, updated, item))

	byID, err = repo.ResolveIDs(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	assert.Equal(t, title+" (updated)", byID[0].Core().Title)

	stale, err := repo.ResolveAliases(ctx, "bbc.co.uk", item.Core().Aliases)
	require.NoError(t, err)
	assert.Empty(t, stale, "replaced aliases no longer resolve")
}

func TestContentRepository_ListUpdatedSince(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := NewRepository(db, getTestLogger())
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	id := time.Now().UnixNano()
	item := testItem(id, "Updated feed title")
	require.NoError(t, repo.WriteContent(ctx, item, nil))

	page, err := repo.ListUpdatedSince(ctx, before, 1000)
	require.NoError(t, err)
	found := false
	for _, c := range page {
		if c.Core().ID != nil && *c.Core().ID == id {
			found = true
		}
	}
	assert.True(t, found)
}

func TestContentRepository_WriteWithoutIDFails(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := NewRepository(db, getTestLogger())

	item := &models.Item{ContentCore: models.ContentCore{Publisher: "bbc.co.uk", Title: "No id"}}
	err := repo.WriteContent(context.Background(), item, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
