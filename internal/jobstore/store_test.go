package jobstore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jwhitley/stacks/internal/entities"
)

func setupGormStore(t *testing.T) (*GormStore, func()) {
	dbPath := "./test_jobstore_" + t.Name() + ".db"

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.ImportJob{})
	require.NoError(t, err)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
		os.Remove(dbPath)
	}

	return NewGormStore(db), cleanup
}

func stores(t *testing.T) map[string]func() (Store, func()) {
	return map[string]func() (Store, func()){
		"gorm": func() (Store, func()) {
			s, cleanup := setupGormStore(t)
			return s, cleanup
		},
		"memory": func() (Store, func()) {
			return NewMemoryStore(), func() {}
		},
	}
}

func TestStore_CreateGetUpdate(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store, cleanup := setup()
			defer cleanup()

			job := &entities.ImportJob{
				ID:     "job-1",
				Kind:   entities.ImportKindBooks,
				Status: entities.JobStatusPending,
			}
			require.NoError(t, store.Create(7, job))

			got, err := store.Get(7, "job-1")
			require.NoError(t, err)
			assert.Equal(t, entities.JobStatusPending, got.Status)

			err = store.Update(7, "job-1", func(j *entities.ImportJob) {
				j.Status = entities.JobStatusRunning
				j.Processed = 12
			})
			require.NoError(t, err)

			got, err = store.Get(7, "job-1")
			require.NoError(t, err)
			assert.Equal(t, entities.JobStatusRunning, got.Status)
			assert.Equal(t, 12, got.Processed)
		})
	}
}

func TestStore_OwnerIsolation(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store, cleanup := setup()
			defer cleanup()

			require.NoError(t, store.Create(1, &entities.ImportJob{ID: "job-1", Status: entities.JobStatusPending}))

			_, err := store.Get(2, "job-1")
			assert.ErrorIs(t, err, ErrNotFound)

			err = store.Update(2, "job-1", func(j *entities.ImportJob) { j.Status = entities.JobStatusFailed })
			assert.ErrorIs(t, err, ErrNotFound)

			jobs, err := store.ListForOwner(2)
			require.NoError(t, err)
			assert.Empty(t, jobs)

			jobs, err = store.ListForOwner(1)
			require.NoError(t, err)
			assert.Len(t, jobs, 1)
		})
	}
}

func TestStore_RequestCancel(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store, cleanup := setup()
			defer cleanup()

			require.NoError(t, store.Create(1, &entities.ImportJob{ID: "job-1", Status: entities.JobStatusRunning}))
			require.NoError(t, store.RequestCancel(1, "job-1"))

			got, err := store.Get(1, "job-1")
			require.NoError(t, err)
			assert.True(t, got.CancelRequested)
		})
	}
}

func TestGormStore_StaleRunning(t *testing.T) {
	store, cleanup := setupGormStore(t)
	defer cleanup()

	stale := &entities.ImportJob{ID: "stale", Status: entities.JobStatusRunning}
	require.NoError(t, store.Create(1, stale))
	fresh := &entities.ImportJob{ID: "fresh", Status: entities.JobStatusRunning}
	require.NoError(t, store.Create(1, fresh))
	done := &entities.ImportJob{ID: "done", Status: entities.JobStatusCompleted}
	require.NoError(t, store.Create(1, done))

	// Backdate the stale job's last update
	err := store.db.Model(&entities.ImportJob{}).
		Where("id = ?", "stale").
		Update("updated_at", time.Now().Add(-time.Hour)).Error
	require.NoError(t, err)
	err = store.db.Model(&entities.ImportJob{}).
		Where("id IN ?", []string{"fresh", "done"}).
		Update("updated_at", time.Now()).Error
	require.NoError(t, err)

	jobs, err := store.StaleRunning(30 * time.Minute)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "stale", jobs[0].ID)
}
