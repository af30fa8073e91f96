package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/hackhub-api/internal/dto"
)

type recordingAnalysisService struct {
	mu        sync.Mutex
	analyzed  []string
	deadlines []bool
}

func (r *recordingAnalysisService) Analyze(ctx context.Context, submissionID string, opts AnalyzeOptions) (AnalysisOutcome, error) {
	_, hasDeadline := ctx.Deadline()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyzed = append(r.analyzed, submissionID)
	r.deadlines = append(r.deadlines, hasDeadline)
	return AnalysisOutcome{}, nil
}

func (r *recordingAnalysisService) AnalyzeBatch(ctx context.Context, payload dto.AnalysisBatchRequest, actor AnalysisActor) (dto.AnalysisBatchResponse, error) {
	return dto.AnalysisBatchResponse{}, nil
}

func (r *recordingAnalysisService) Status(ctx context.Context, submissionID string) (dto.AnalysisStatusResponse, error) {
	return dto.AnalysisStatusResponse{}, nil
}

func (r *recordingAnalysisService) Trigger(ctx context.Context, payload dto.AnalysisTriggerRequest, actor AnalysisActor) (dto.AnalysisTriggerResponse, error) {
	return dto.AnalysisTriggerResponse{}, nil
}

func (r *recordingAnalysisService) snapshot() ([]string, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.analyzed...), append([]bool(nil), r.deadlines...)
}

func TestAsyncDispatcherRunsDetachedFromRequest(t *testing.T) {
	recorder := &recordingAnalysisService{}
	dispatcher := NewAsyncDispatcher(recorder, time.Minute, zerolog.Nop())

	requestCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, dispatcher.Dispatch(requestCtx, " s1 "))
	cancel()
	dispatcher.Wait()

	analyzed, deadlines := recorder.snapshot()
	require.Equal(t, []string{"s1"}, analyzed)
	require.Equal(t, []bool{true}, deadlines, "detached runs are bounded by their own timeout")

	require.ErrorIs(t, dispatcher.Dispatch(context.Background(), ""), ErrSubmissionNotFound)
}

func TestNATSDispatcherHandlesRequests(t *testing.T) {
	recorder := &recordingAnalysisService{}
	dispatcher := NewNATSDispatcher(nil, "hackhub.", recorder, 0, zerolog.Nop())
	require.Equal(t, "hackhub.analysis.requested", dispatcher.Subject())

	payload, err := json.Marshal(analysisRequestEvent{SubmissionID: "s9", RequestedAt: time.Now()})
	require.NoError(t, err)

	dispatcher.handleMessage(payload)
	dispatcher.handleMessage([]byte("not-json"))
	dispatcher.handleMessage([]byte(`{"submissionId":"  "}`))
	dispatcher.Wait()

	analyzed, deadlines := recorder.snapshot()
	require.Equal(t, []string{"s9"}, analyzed)
	require.Equal(t, []bool{false}, deadlines)
}
