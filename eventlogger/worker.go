package eventlogger

import (
	"context"
	"log/slog"
	"sync"
)

// Worker saves events to a Journal in the background so that request paths
// never wait on the journal. Log never blocks: when the buffer is full the
// event is dropped with a warning.
type Worker struct {
	eventCh chan Event
	journal Journal
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func NewWorker(journal Journal, bufferSize int) *Worker {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		eventCh: make(chan Event, bufferSize),
		journal: journal,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *Worker) Start() {
	w.wg.Go(func() {
		for {
			select {
			case <-w.ctx.Done():
				w.drain()
				return
			case event := <-w.eventCh:
				w.save(w.ctx, event)
			}
		}
	})
}

func (w *Worker) drain() {
	slog.Info("draining events before shutdown", "remaining_events", len(w.eventCh))
	for {
		select {
		case event := <-w.eventCh:
			w.save(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) save(ctx context.Context, event Event) {
	if err := w.journal.Save(ctx, event); err != nil {
		slog.Error("failed to save event", "error", err, "event_type", event.Type, "event_id", event.ID)
	}
}

func (w *Worker) Log(event Event) {
	select {
	case w.eventCh <- event:
	default:
		slog.Warn("event channel full, dropping event", "event_type", event.Type, "event_id", event.ID)
	}
}

// Shutdown stops the worker after saving whatever is still buffered. It
// returns early with ctx's error if draining outlives ctx.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.once.Do(w.cancel)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
