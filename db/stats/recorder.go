package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jacobpatterson1549/deathroll/server/log"
)

type (
	// Recorder stores outcomes in the background, retrying with backoff when the backend fails.
	Recorder struct {
		log          log.Logger
		dao          *Dao
		queue        chan Outcome
		retryTimeout time.Duration
		newBackOff   func() backoff.BackOff
	}

	// RecorderConfig contains the properties to create a Recorder.
	RecorderConfig struct {
		// Log is used to log errors and other information.
		Log log.Logger
		// QueueSize is the number of outcomes that can wait to be recorded.
		QueueSize int
		// RetryTimeout is the maximum time spent retrying to record an outcome.
		RetryTimeout time.Duration
	}
)

// NewRecorder creates a Recorder that records outcomes with the Dao.
func (cfg RecorderConfig) NewRecorder(d *Dao) (*Recorder, error) {
	if err := cfg.validate(d); err != nil {
		return nil, fmt.Errorf("creating stats recorder: validation: %w", err)
	}
	r := Recorder{
		log:          cfg.Log,
		dao:          d,
		queue:        make(chan Outcome, cfg.QueueSize),
		retryTimeout: cfg.RetryTimeout,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	return &r, nil
}

// validate ensures the configuration has no errors.
func (cfg RecorderConfig) validate(d *Dao) error {
	switch {
	case cfg.Log == nil:
		return fmt.Errorf("log required")
	case d == nil:
		return fmt.Errorf("dao required")
	case cfg.QueueSize <= 0:
		return fmt.Errorf("positive queue size required")
	case cfg.RetryTimeout <= 0:
		return fmt.Errorf("positive retry timeout required")
	}
	return nil
}

// Record queues the outcome to be recorded without blocking.
// The outcome is dropped if the queue is full.
func (r *Recorder) Record(o Outcome) {
	select {
	case r.queue <- o:
	default:
		r.log.Printf("stats queue full, dropping outcome of %v", o.SessionID)
	}
}

// Run records queued outcomes until the context is done.
func (r *Recorder) Run(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		for { // BLOCKING
			select {
			case <-ctx.Done():
				return
			case o := <-r.queue:
				r.record(ctx, o)
			}
		}
	}()
}

// record stores the outcome, retrying while the error is not permanent.
func (r *Recorder) record(ctx context.Context, o Outcome) {
	if err := o.Validate(); err != nil {
		r.log.Printf("not recording outcome of %v: %v", o.SessionID, err)
		return
	}
	operation := func() (struct{}, error) {
		err := r.dao.RecordOutcome(ctx, o)
		return struct{}{}, err
	}
	notify := func(err error, d time.Duration) {
		r.log.Printf("retrying to record outcome of %v in %v: %v", o.SessionID, d, err)
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxElapsedTime(r.retryTimeout),
		backoff.WithNotify(notify))
	if err != nil {
		r.log.Printf("recording outcome of %v: %v", o.SessionID, err)
	}
}
