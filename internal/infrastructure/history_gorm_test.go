package infrastructure

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/media-fetch-go/internal/domain"
)

func setupHistoryRepo(t *testing.T) *SQLiteHistoryRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	repo, err := NewSQLiteHistoryRepository(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func historyRecord(outcome domain.RecordOutcome) *domain.DownloadRecord {
	return &domain.DownloadRecord{
		ID:       uuid.New().String(),
		URL:      "https://www.youtube.com/watch?v=x",
		Platform: domain.PlatformYouTube,
		Tier:     domain.Tier720p,
		Outcome:  outcome,
		Strategy: domain.StrategyPackage,
	}
}

func TestHistoryRecordAndRecent(t *testing.T) {
	repo := setupHistoryRepo(t)

	for i := 0; i < 5; i++ {
		rec := historyRecord(domain.OutcomeDelivered)
		rec.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%d", i)
		rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Record(rec))
	}

	recent, err := repo.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "https://www.youtube.com/watch?v=4", recent[0].URL)
	assert.Equal(t, "https://www.youtube.com/watch?v=3", recent[1].URL)
}

func TestHistoryRecentDefaultLimit(t *testing.T) {
	repo := setupHistoryRepo(t)
	require.NoError(t, repo.Record(historyRecord(domain.OutcomeFailed)))

	recent, err := repo.Recent(0)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestHistoryStats(t *testing.T) {
	repo := setupHistoryRepo(t)

	delivered := historyRecord(domain.OutcomeDelivered)
	delivered.Compressed = true
	require.NoError(t, repo.Record(delivered))
	require.NoError(t, repo.Record(historyRecord(domain.OutcomeDelivered)))
	require.NoError(t, repo.Record(historyRecord(domain.OutcomeFailed)))
	require.NoError(t, repo.Record(historyRecord(domain.OutcomeCancelled)))

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Delivered)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Cancelled)
	assert.Equal(t, int64(1), stats.Compressed)
}

func TestHistoryCreatesDatabaseDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	repo, err := NewSQLiteHistoryRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()

	require.NoError(t, repo.Record(historyRecord(domain.OutcomeDelivered)))
}
