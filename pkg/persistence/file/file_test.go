package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveflow/weft/pkg/persistence"
)

func newTestPersistence(t *testing.T) persistence.Persistence {
	t.Helper()

	p, err := NewPersistence(t.TempDir())
	require.NoError(t, err)

	return p
}

func testRecord(id string, startedAt time.Time) *persistence.RunRecord {
	return &persistence.RunRecord{
		ID:         id,
		Project:    "demo",
		State:      "COMPLETED",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
		NodeStates: map[string]string{"importer": "SUCCESS"},
	}
}

func TestSaveAndGetRunRecord(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	record := testRecord("run-1", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, p.RunRepository().Save(ctx, record))

	loaded, err := p.RunRepository().GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, record.Project, loaded.Project)
	assert.Equal(t, record.State, loaded.State)
	assert.Equal(t, record.NodeStates, loaded.NodeStates)
	assert.Equal(t, 2*time.Second, loaded.Duration())
}

func TestGetUnknownRunRecord(t *testing.T) {
	p := newTestPersistence(t)

	_, err := p.RunRepository().GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestSaveRejectsIncompleteRecord(t *testing.T) {
	p := newTestPersistence(t)

	err := p.RunRepository().Save(context.Background(), &persistence.RunRecord{Project: "demo"})
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrInvalidRunRecord)
}

func TestListRunRecordsNewestFirst(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, p.RunRepository().Save(ctx, testRecord("run-old", base.Add(-time.Hour))))
	require.NoError(t, p.RunRepository().Save(ctx, testRecord("run-new", base)))

	records, err := p.RunRepository().List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].ID)
	assert.Equal(t, "run-old", records[1].ID)
}

func TestDeleteRunRecord(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.RunRepository().Save(ctx, testRecord("run-1", time.Now())))
	require.NoError(t, p.RunRepository().Delete(ctx, "run-1"))

	_, err := p.RunRepository().GetByID(ctx, "run-1")
	assert.True(t, persistence.IsRunNotFound(err))

	err = p.RunRepository().Delete(ctx, "run-1")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestHealthCheck(t *testing.T) {
	p := newTestPersistence(t)

	assert.NoError(t, p.HealthCheck(context.Background()))
	assert.NoError(t, p.Close(context.Background()))
}
