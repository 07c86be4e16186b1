// Package worker contains the background jobs that run beside the API.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

const (
	// pollTimeout bounds one blocking pop so shutdown is noticed promptly.
	pollTimeout = 1 * time.Second
	// maxAttempts is how often a job is tried before it is dropped.
	maxAttempts = 3
)

var errMalformedJob = errors.New("malformed result job")

// JobQueue is the queue the worker consumes.
type JobQueue interface {
	Push(ctx context.Context, job model.ResultJob) error
	Pop(ctx context.Context, timeout time.Duration) (*model.ResultJob, error)
}

// ResultSource builds the mail contents of one user's result.
type ResultSource interface {
	ResultView(ctx context.Context, testID uuid.UUID, userID int) (*model.ResultView, error)
}

// NotificationWorker drains the results queue and mails each user their
// graded answers.
type NotificationWorker struct {
	queue  JobQueue
	source ResultSource
	mailer Mailer
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// NewNotificationWorker creates a new NotificationWorker.
func NewNotificationWorker(queue JobQueue, source ResultSource, mailer Mailer, log zerolog.Logger) *NotificationWorker {
	return &NotificationWorker{
		queue:  queue,
		source: source,
		mailer: mailer,
		log:    log.With().Str("component", "notification_worker").Logger(),
	}
}

// Start runs the consume loop in a goroutine until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.log.Info().Msg("Notification worker started")
		for {
			select {
			case <-ctx.Done():
				w.log.Info().Msg("Notification worker stopped")
				return
			default:
				w.poll(ctx)
			}
		}
	}()
}

// Wait blocks until the loop has exited or timeout elapses. It reports
// whether the loop finished in time.
func (w *NotificationWorker) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *NotificationWorker) poll(ctx context.Context) {
	job, err := w.queue.Pop(ctx, pollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errMalformedJob) {
			w.log.Error().Err(err).Msg("Dropping malformed job")
			return
		}
		w.log.Error().Err(err).Msg("Failed to pop from results queue")
		sleepCtx(ctx, pollTimeout)
		return
	}
	if job == nil {
		return
	}
	w.handle(ctx, *job)
}

// handle processes one job. Failures are requeued until maxAttempts; a
// missing user, test or grade drops the job.
func (w *NotificationWorker) handle(ctx context.Context, job model.ResultJob) {
	log := w.log.With().Str("test_id", job.TestID.String()).Int("user_id", job.UserID).Logger()

	err := w.process(ctx, job)
	if err == nil {
		log.Info().Msg("Results mailed")
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		log.Warn().Err(err).Msg("Dropping job: result no longer exists")
		return
	}

	job.Attempts++
	if job.Attempts >= maxAttempts {
		log.Error().Err(err).Int("attempts", job.Attempts).Msg("Dropping job after repeated failures")
		return
	}
	log.Warn().Err(err).Int("attempts", job.Attempts).Msg("Mail failed, requeueing")

	// Requeue on a fresh context so a job in flight during shutdown survives.
	requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.queue.Push(requeueCtx, job); err != nil {
		log.Error().Err(err).Msg("Failed to requeue job")
	}
}

func (w *NotificationWorker) process(ctx context.Context, job model.ResultJob) error {
	view, err := w.source.ResultView(ctx, job.TestID, job.UserID)
	if err != nil {
		return err
	}
	msg, err := RenderResult(view)
	if err != nil {
		return err
	}
	if msg.To == "" {
		w.log.Warn().Int("user_id", job.UserID).Msg("User has no email, skipping")
		return nil
	}
	return w.mailer.Send(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
