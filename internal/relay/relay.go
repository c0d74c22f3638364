package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/backend"
	"github.com/noah-isme/kasir-gateway/internal/obs"
)

// Task types processed by the relay worker.
const (
	TypeAttendancePunch = "relay:attendance_punch"
	TypeOrderSubmit     = "relay:order_submit"
)

// Queue is the asynq queue the relay uses.
const Queue = "relay"

const defaultMaxRetry = 25

// Enqueuer parks writes that could not reach the upstream so they are
// replayed once connectivity returns. The caller's idempotency key becomes
// the task id, so a retried enqueue of the same write is a no-op.
type Enqueuer struct {
	Client   *asynq.Client
	MaxRetry int
	Log      zerolog.Logger
}

// EnqueueAttendance parks an attendance punch for replay.
func (e *Enqueuer) EnqueueAttendance(ctx context.Context, key string, body json.RawMessage) error {
	return e.enqueue(ctx, TypeAttendancePunch, key, body)
}

// EnqueueOrder parks an order submission for replay.
func (e *Enqueuer) EnqueueOrder(ctx context.Context, key string, body json.RawMessage) error {
	return e.enqueue(ctx, TypeOrderSubmit, key, body)
}

func (e *Enqueuer) enqueue(ctx context.Context, kind, key string, body json.RawMessage) error {
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	opts := []asynq.Option{
		asynq.Queue(Queue),
		asynq.MaxRetry(maxRetry),
	}
	if key != "" {
		opts = append(opts, asynq.TaskID(key))
	}
	_, err := e.Client.EnqueueContext(ctx, asynq.NewTask(kind, body), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Duplicate submission of the same write, already parked.
			return nil
		}
		countTask(kind, "enqueue_failed")
		return fmt.Errorf("relay: enqueue %s: %w", kind, err)
	}
	countTask(kind, "enqueued")
	e.Log.Info().Str("kind", kind).Str("task_id", key).Msg("relay: parked for replay")
	return nil
}

// Worker replays parked writes against the upstream.
type Worker struct {
	Backend *backend.Client
	Log     zerolog.Logger
}

// Register binds the relay task handlers onto the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAttendancePunch, w.handleAttendance)
	mux.HandleFunc(TypeOrderSubmit, w.handleOrder)
}

func (w *Worker) handleAttendance(ctx context.Context, t *asynq.Task) error {
	return w.replay(ctx, t, "/api/"+backend.ResAttendance)
}

func (w *Worker) handleOrder(ctx context.Context, t *asynq.Task) error {
	return w.replay(ctx, t, "/api/"+backend.ResOrders)
}

func (w *Worker) replay(ctx context.Context, t *asynq.Task, path string) error {
	_, err := w.Backend.Post(ctx, path, json.RawMessage(t.Payload()))
	if err == nil {
		countTask(t.Type(), "replayed")
		w.Log.Info().Str("kind", t.Type()).Msg("relay: replayed")
		return nil
	}
	if errors.Is(err, backend.ErrUnavailable) {
		countTask(t.Type(), "retried")
		return err
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		// The upstream understood the request and rejected it; retrying the
		// same payload cannot succeed.
		countTask(t.Type(), "rejected")
		w.Log.Error().Str("kind", t.Type()).Int("status", apiErr.StatusCode).
			Msg("relay: upstream rejected replayed write")
		return fmt.Errorf("relay: %v: %w", err, asynq.SkipRetry)
	}
	countTask(t.Type(), "retried")
	return err
}

func countTask(kind, result string) {
	if obs.RelayTasksTotal == nil {
		return
	}
	obs.RelayTasksTotal.WithLabelValues(kind, result).Inc()
}
