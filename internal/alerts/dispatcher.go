package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var alertsTriggered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "alerts_triggered_total",
		Help: "Alert rules that fired, by rule type",
	},
	[]string{"type"},
)

// Evaluator decides which alert rules an event trips.
type Evaluator interface {
	Evaluate(ctx context.Context, accountID string, amount *decimal.Decimal) ([]models.TriggeredAlert, error)
}

// Dispatcher drains the queue with a fixed number of workers.
type Dispatcher struct {
	queue     Queue
	evaluator Evaluator
	workers   int
	backoff   time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

func NewDispatcher(queue Queue, evaluator Evaluator, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		queue:     queue,
		evaluator: evaluator,
		workers:   workers,
		backoff:   time.Second,
		stopChan:  make(chan struct{}),
		doneChan:  make(chan struct{}),
	}
}

// Start launches the workers. They run until Stop is called or ctx ends.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.work(ctx, id)
		}(i)
	}

	go func() {
		select {
		case <-d.stopChan:
		case <-ctx.Done():
		}
		cancel()
		wg.Wait()
		close(d.doneChan)
	}()

	zap.L().Info("Alert dispatcher started", zap.Int("workers", d.workers))
}

// Stop gracefully stops the dispatcher
func (d *Dispatcher) Stop() {
	zap.L().Info("Stopping alert dispatcher")
	close(d.stopChan)
	<-d.doneChan
	zap.L().Info("Alert dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	for ctx.Err() == nil {
		event, ok, err := d.queue.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			zap.L().Error("Failed to read alert event", zap.Int("worker", id), zap.Error(err))
			select {
			case <-time.After(d.backoff):
			case <-ctx.Done():
				return
			}
			continue
		}
		if !ok {
			continue
		}
		d.Handle(ctx, event)
	}
}

// Handle evaluates a single event. Evaluation errors are logged and dropped.
func (d *Dispatcher) Handle(ctx context.Context, event models.AlertEvent) []models.TriggeredAlert {
	triggered, err := d.evaluator.Evaluate(ctx, event.AccountID, event.Amount)
	if err != nil {
		zap.L().Warn("Alert evaluation failed",
			zap.String("account_id", event.AccountID),
			zap.Error(err))
		return nil
	}

	for _, alert := range triggered {
		alertsTriggered.WithLabelValues(string(alert.Rule.Type)).Inc()
		zap.L().Info("Alert triggered",
			zap.String("rule_id", alert.Rule.ID),
			zap.String("user_id", alert.Rule.UserID),
			zap.String("account_id", event.AccountID),
			zap.String("type", string(alert.Rule.Type)),
			zap.String("message", alert.Message))
	}
	return triggered
}
