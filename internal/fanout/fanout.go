package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/types"
)

const (
	defaultWorkers        = 4
	defaultMaxRetries     = 3
	defaultAttemptTimeout = 10 * time.Second
	defaultInitialBackoff = 500 * time.Millisecond
)

// Engine delivers one payload (or a personalized payload per recipient)
// to many recipients with a fixed worker pool. Partial failures never
// fail the dispatch as a whole; the caller always gets full accounting.
type Engine struct {
	transport      types.Transport
	workers        int
	maxRetries     uint64
	attemptTimeout time.Duration
	initialBackoff time.Duration
	logger         *zap.Logger
}

type Config struct {
	Workers        int
	MaxRetries     int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
}

func NewEngine(transport types.Transport, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	return &Engine{
		transport:      transport,
		workers:        cfg.Workers,
		maxRetries:     uint64(cfg.MaxRetries),
		attemptTimeout: cfg.AttemptTimeout,
		initialBackoff: cfg.InitialBackoff,
		logger:         logger,
	}
}

// Dispatch sends build(recipient) to every recipient and returns the
// aggregate accounting; Sent+Failed always equals len(recipients) and
// FailedIDs follows the input order. Recipients without a transport
// identity are counted failed without an attempt.
func (e *Engine) Dispatch(ctx context.Context, recipients []types.Recipient, build func(types.Recipient) types.Payload) types.FanoutResult {
	jobID := uuid.New().String()
	logger := e.logger.With(zap.String("job_id", jobID))
	logger.Info("dispatch started", zap.Int("recipients", len(recipients)))

	failed := make([]bool, len(recipients))

	workers := e.workers
	if workers > len(recipients) {
		workers = len(recipients)
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				r := recipients[i]
				if r.TelegramID == 0 {
					logger.Warn("recipient has no transport identity", zap.String("recipient_id", r.ID))
					failed[i] = true
					continue
				}
				if err := e.deliver(ctx, r, build(r)); err != nil {
					logger.Error("delivery failed",
						zap.String("recipient_id", r.ID),
						zap.Error(err))
					failed[i] = true
				}
			}
		}()
	}

	for i := range recipients {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	result := types.FanoutResult{}
	for i, r := range recipients {
		if failed[i] {
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, r.ID)
		} else {
			result.Sent++
		}
	}

	logger.Info("dispatch finished",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))
	return result
}

// deliver attempts one recipient: transient failures are retried with
// exponential backoff up to maxRetries, permanent ones abort after the
// first attempt.
func (e *Engine) deliver(ctx context.Context, r types.Recipient, payload types.Payload) error {
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.initialBackoff))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()

		err := e.transport.SendMessage(attemptCtx, r.TelegramID, payload)
		if err == nil {
			return nil
		}

		var derr *types.DeliveryError
		if errors.As(err, &derr) && derr.Kind == types.DeliveryPermanent {
			return err
		}
		return retry.RetryableError(err)
	})
}
