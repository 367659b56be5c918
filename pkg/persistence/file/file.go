// Package file provides a file-based persistence implementation for run history.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/weaveflow/weft/pkg/persistence"
)

const runsDirName = "runs"

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root    string
	runRepo *RunRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) (persistence.Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	if err := os.MkdirAll(path.Join(cleanRoot, runsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	return &Persistence{
		root:    cleanRoot,
		runRepo: NewRunRepository(cleanRoot),
	}, nil
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// RunRepository returns the run repository implementation for file persistence.
func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

// RunRepository handles run-record file operations. Each record is stored as
// <root>/runs/<id>.json.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) recordPath(id string) string {
	return path.Join(rr.root, runsDirName, id+".json")
}

// Save persists a run record, overwriting any record with the same ID.
func (rr *RunRepository) Save(_ context.Context, record *RunRecord) error {
	if record.ID == "" || record.Project == "" {
		return persistence.NewRunError("Save", record.ID, persistence.ErrInvalidRunRecord)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewRunError("Save", record.ID, err)
	}

	if err := os.WriteFile(rr.recordPath(record.ID), data, 0o644); err != nil {
		return persistence.NewRunError("Save", record.ID, err)
	}

	return nil
}

// GetByID returns the record for one run, or persistence.ErrRunNotFound.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*RunRecord, error) {
	data, err := os.ReadFile(rr.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	var record RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return &record, nil
}

// List returns all stored records, newest first.
func (rr *RunRepository) List(ctx context.Context) ([]*RunRecord, error) {
	root := os.DirFS(path.Join(rr.root, runsDirName))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	records := make([]*RunRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		id := strings.TrimSuffix(file, ".json")

		record, err := rr.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})

	return records, nil
}

// Delete removes a run record.
func (rr *RunRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(rr.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return persistence.NewRunError("Delete", id, persistence.ErrRunNotFound)
		}

		return persistence.NewRunError("Delete", id, err)
	}

	return nil
}

// RunRecord aliases the persistence model so callers of this package can stay
// on one import.
type RunRecord = persistence.RunRecord
