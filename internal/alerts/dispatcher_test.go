package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pocketbank/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	mu      sync.Mutex
	calls   []string
	alerts  []models.TriggeredAlert
	failFor string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, accountID string, amount *decimal.Decimal) ([]models.TriggeredAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountID)
	if accountID == f.failFor {
		return nil, errors.New("store unavailable")
	}
	return f.alerts, nil
}

func (f *fakeEvaluator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDispatcher_Handle(t *testing.T) {
	ctx := context.Background()
	evaluator := &fakeEvaluator{
		alerts: []models.TriggeredAlert{{
			Rule:    models.AlertRule{ID: "rule-1", Type: models.AlertTypeLargeTransaction},
			Message: "Large transaction alert: Transaction of $500.00 exceeds threshold of $100.00",
		}},
		failFor: "acc-broken",
	}
	d := NewDispatcher(NewChannelQueue(1, time.Millisecond), evaluator, 1)

	triggered := d.Handle(ctx, sampleEvent())
	require.Len(t, triggered, 1)
	assert.Equal(t, "rule-1", triggered[0].Rule.ID)

	broken := sampleEvent()
	broken.AccountID = "acc-broken"
	assert.Nil(t, d.Handle(ctx, broken))
	assert.Equal(t, 2, evaluator.callCount())
}

func TestDispatcher_StartStop(t *testing.T) {
	ctx := context.Background()
	queue := NewChannelQueue(16, 5*time.Millisecond)
	evaluator := &fakeEvaluator{failFor: "acc-broken"}

	d := NewDispatcher(queue, evaluator, 3)
	d.Start(ctx)

	for _, id := range []string{"acc-1", "acc-broken", "acc-2", "acc-3"} {
		event := sampleEvent()
		event.AccountID = id
		require.NoError(t, queue.Publish(ctx, event))
	}

	assert.Eventually(t, func() bool { return evaluator.callCount() == 4 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDispatcher(NewChannelQueue(1, time.Minute), &fakeEvaluator{}, 2)
	d.Start(ctx)
	cancel()

	select {
	case <-d.doneChan:
	case <-time.After(time.Second):
		t.Fatal("workers still running after cancel")
	}
}
