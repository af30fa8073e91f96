package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/hackhub-api/internal/observability"
)

const analysisQueueGroup = "hackhub-analysis"

// AnalysisDispatcher requests an analysis without waiting for it to finish.
type AnalysisDispatcher interface {
	Dispatch(ctx context.Context, submissionID string) error
}

type analysisRequestEvent struct {
	SubmissionID string    `json:"submissionId"`
	RequestedAt  time.Time `json:"requestedAt"`
}

// detachedRunner executes analyses outside any request lifetime, bounded by its own timeout.
type detachedRunner struct {
	analysis AnalysisService
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func (r *detachedRunner) spawn(submissionID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		outcome, err := r.analysis.Analyze(ctx, submissionID, AnalyzeOptions{})
		switch {
		case err == nil && outcome.AlreadyAnalyzed:
			r.logger.Debug().Str("submission_id", submissionID).Msg("detached analysis skipped, already analyzed")
		case err == nil:
			r.logger.Info().Str("submission_id", submissionID).Msg("detached analysis finished")
		case errors.Is(err, ErrAnalysisInProgress):
			r.logger.Debug().Str("submission_id", submissionID).Msg("detached analysis skipped, already running")
		default:
			r.logger.Error().Err(err).Str("submission_id", submissionID).Msg("detached analysis failed")
		}
	}()
}

// AsyncDispatcher runs analyses in-process on a background goroutine.
type AsyncDispatcher struct {
	runner *detachedRunner
}

// NewAsyncDispatcher builds the in-process dispatcher used when NATS is not configured.
func NewAsyncDispatcher(analysis AnalysisService, timeout time.Duration, logger zerolog.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{runner: &detachedRunner{
		analysis: analysis,
		timeout:  timeout,
		logger:   logger.With().Str("component", "analysis_dispatcher").Str("transport", "inprocess").Logger(),
	}}
}

// Dispatch never blocks on the analysis itself.
func (d *AsyncDispatcher) Dispatch(_ context.Context, submissionID string) error {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return ErrSubmissionNotFound
	}
	d.runner.spawn(submissionID)
	observability.AnalysisDispatches().WithLabelValues("inprocess", "queued").Inc()
	return nil
}

// Wait blocks until every dispatched analysis has returned.
func (d *AsyncDispatcher) Wait() {
	d.runner.wg.Wait()
}

// NATSDispatcher publishes analysis requests to NATS; Start consumes them with a queue group so
// each request is processed by exactly one API instance.
type NATSDispatcher struct {
	conn    *nats.Conn
	subject string
	runner  *detachedRunner
	logger  zerolog.Logger
}

// NewNATSDispatcher builds a dispatcher publishing on "<subjectBase>.analysis.requested".
func NewNATSDispatcher(conn *nats.Conn, subjectBase string, analysis AnalysisService, timeout time.Duration, logger zerolog.Logger) *NATSDispatcher {
	base := strings.Trim(strings.TrimSpace(subjectBase), ".")
	if base == "" {
		base = "hackhub"
	}
	dispatcherLogger := logger.With().Str("component", "analysis_dispatcher").Str("transport", "nats").Logger()

	return &NATSDispatcher{
		conn:    conn,
		subject: base + ".analysis.requested",
		runner: &detachedRunner{
			analysis: analysis,
			timeout:  timeout,
			logger:   dispatcherLogger,
		},
		logger: dispatcherLogger,
	}
}

// Subject returns the subject analysis requests are published on.
func (d *NATSDispatcher) Subject() string {
	return d.subject
}

func (d *NATSDispatcher) Dispatch(_ context.Context, submissionID string) error {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return ErrSubmissionNotFound
	}

	payload, err := json.Marshal(analysisRequestEvent{SubmissionID: submissionID, RequestedAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if err := d.conn.Publish(d.subject, payload); err != nil {
		observability.AnalysisDispatches().WithLabelValues("nats", "error").Inc()
		return err
	}

	observability.AnalysisDispatches().WithLabelValues("nats", "queued").Inc()
	return nil
}

// Start subscribes to analysis requests until ctx is cancelled.
func (d *NATSDispatcher) Start(ctx context.Context) error {
	sub, err := d.conn.QueueSubscribe(d.subject, analysisQueueGroup, func(msg *nats.Msg) {
		d.handleMessage(msg.Data)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			d.logger.Warn().Err(err).Msg("failed to drain analysis subscription")
		}
	}()

	d.logger.Info().Str("subject", d.subject).Msg("analysis consumer started")
	return nil
}

// Wait blocks until every consumed analysis has returned.
func (d *NATSDispatcher) Wait() {
	d.runner.wg.Wait()
}

func (d *NATSDispatcher) handleMessage(payload []byte) {
	var event analysisRequestEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.logger.Warn().Err(err).Msg("invalid analysis request payload")
		return
	}

	submissionID := strings.TrimSpace(event.SubmissionID)
	if submissionID == "" {
		d.logger.Warn().Msg("analysis request without submission id")
		return
	}

	d.runner.spawn(submissionID)
}
