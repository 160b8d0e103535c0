package jobs

import (
	"context"

	"github.com/chisel3d/chisel/pkg/queue"
)

// CancelOrRemove implements the DELETE semantics of the job API:
// waiting jobs are removed outright; active jobs get their cooperative
// cancellation flag set and fail at the worker's next checkpoint.
func CancelOrRemove(ctx context.Context, b queue.Broker, queueName, id string) error {
	removed, err := b.Remove(ctx, queueName, id)
	if err != nil || removed {
		return err
	}
	return b.Cancel(ctx, queueName, id)
}

// ForceFail moves a job to failed immediately without waiting for the
// worker to cooperate. Kernel objects held by the aborted job are
// orphaned until the worker's own cleanup or process recycle.
func ForceFail(ctx context.Context, b queue.Broker, queueName, id, reason string, policy Policy) error {
	return b.Fail(ctx, queueName, id, reason, policy.RetainFailed)
}

// CleanState removes all job records in the given state.
func CleanState(ctx context.Context, b queue.Broker, queueName string, state queue.State) (int, error) {
	return b.Clean(ctx, queueName, state)
}

// RequestRestart signals every worker to drain and exit so the
// supervisor can restart them.
func RequestRestart(ctx context.Context, b queue.Broker) error {
	return b.SignalRestart(ctx)
}
