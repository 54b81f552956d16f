package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/evcraddock/property-sync/internal/apperr"
	"github.com/evcraddock/property-sync/internal/property"
)

func TestMongoStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err, "start mongo container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Errorf("terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := Open(ctx, Config{URI: uri, Database: "psync_test", Collection: DefaultCollection, Timeout: 10 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close(context.Background())) })

	rec := &property.Record{
		ExternalID: "48749425",
		Address:    "2114 Bigelow Ave N",
		PostalCode: "98109",
		Attributes: map[string]any{"zestimate.amount": "1219500", "useCode": "SingleFamily"},
	}

	_, err = s.FindOne(ctx, Filter{ExternalID: rec.ExternalID})
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.Insert(ctx, rec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = s.Insert(ctx, rec)
	assert.ErrorIs(t, err, apperr.ErrStorageConflict, "unique index must reject duplicates")

	got, err := s.FindOne(ctx, Filter{ExternalID: rec.ExternalID})
	require.NoError(t, err)
	assert.Equal(t, rec.Attributes, got.Attributes)

	res, err := s.UpdateOne(ctx, Filter{ExternalID: rec.ExternalID}, &property.Record{
		ExternalID: rec.ExternalID,
		Address:    rec.Address,
		PostalCode: rec.PostalCode,
		Attributes: map[string]any{"zestimate.amount": "1250000"},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Matched)

	got, err = s.FindOne(ctx, Filter{ExternalID: rec.ExternalID})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"zestimate.amount": "1250000"}, got.Attributes)

	res, err = s.UpdateOne(ctx, Filter{ExternalID: "new-id"}, &property.Record{ExternalID: "new-id"}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, res.UpsertedID)

	got, err = s.FindOne(ctx, Filter{ExternalID: "new-id"})
	require.NoError(t, err)
	assert.Equal(t, "new-id", got.ExternalID)
}
