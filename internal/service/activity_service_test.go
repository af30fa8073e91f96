package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hackhub-api/internal/dto"
	"github.com/noah-isme/hackhub-api/internal/models"
	"github.com/noah-isme/hackhub-api/internal/repository"
)

type memoryActivityRepo struct {
	mu         sync.Mutex
	entries    []models.ActivityLog
	lastFilter repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(_ context.Context, entry *models.ActivityLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(_ context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func (m *memoryActivityRepo) snapshot() []models.ActivityLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ActivityLog(nil), m.entries...)
}

func TestActivityServiceRecordMasksSecrets(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		Actor:      AnalysisActor{ID: "judge-1", Role: "Judge"},
		Action:     "Analysis.Completed",
		EntityType: "submission",
		EntityID:   "s1",
		Metadata: map[string]interface{}{
			"api_key":     "sk-123",
			"owner_email": "team@example.com",
			"score":       82.5,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["api_key"])
	require.Equal(t, "***", entry.Metadata["owner_email"])
	require.Equal(t, 82.5, entry.Metadata["score"])
	require.Equal(t, "judge", entry.ActorRole)
	require.Equal(t, models.ActivityAnalysisCompleted, entry.Action)
}

func TestActivityServiceRecordDefaultsToSystemActor(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, validator.New(), zerolog.Nop())

	entry, err := svc.Record(context.Background(), ActivityEntry{Action: models.ActivityAnalysisFailed, EntityType: "submission", EntityID: "s1"})
	require.NoError(t, err)
	require.Equal(t, "system", entry.ActorID)
	require.Equal(t, "system", entry.ActorRole)

	_, err = svc.Record(context.Background(), ActivityEntry{EntityType: "submission"})
	require.Error(t, err)
	require.Len(t, repo.snapshot(), 1)
}

func TestActivityServiceListScopesBySubmission(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())

	_, err := svc.Record(context.Background(), ActivityEntry{Action: models.ActivityAnalysisCompleted, EntityType: "submission", EntityID: "s1"})
	require.NoError(t, err)

	result, err := svc.List(context.Background(), dto.ActivityListRequest{SubmissionID: " s1 ", PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "submission", repo.lastFilter.EntityType)
	require.Equal(t, "s1", repo.lastFilter.EntityID)
	require.Equal(t, 1, result.Pagination.Page)
	require.Equal(t, 1, result.Pagination.TotalPages)

	_, err = svc.List(context.Background(), dto.ActivityListRequest{Action: "deleted"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)
}
