package jobs

import (
	"context"
	"time"

	"github.com/chisel3d/chisel/pkg/queue"
)

// defaultProcessingTime seeds the wait estimate before any job has
// completed.
const defaultProcessingTime = 120 * time.Second

// historySamples caps how many recent completions feed the average.
const historySamples = 20

// Position describes a job's place in the queue. Position is 1-based;
// both it and EstimatedWait are zero unless the job is waiting.
type Position struct {
	State         queue.State   `json:"state"`
	Position      int           `json:"position"`
	TotalWaiting  int           `json:"totalWaiting"`
	EstimatedWait time.Duration `json:"estimatedWait"`
}

// QueuePosition computes the waiting rank and wait estimate for a job.
// The estimate scales the average recent processing time by the number
// of jobs ahead, spread across the active worker slots.
func QueuePosition(ctx context.Context, b queue.Broker, queueName, id string) (Position, error) {
	job, err := b.Get(ctx, queueName, id)
	if err != nil {
		return Position{}, err
	}
	pos := Position{State: job.State}
	if job.State != queue.StateWaiting {
		return pos, nil
	}

	rank, total, err := b.WaitingRank(ctx, queueName, id)
	if err != nil {
		return pos, err
	}
	pos.TotalWaiting = total
	if rank < 0 {
		return pos, nil
	}
	pos.Position = rank + 1

	active, err := b.ActiveCount(ctx, queueName)
	if err != nil {
		return pos, err
	}
	if active < 1 {
		active = 1
	}

	avg := defaultProcessingTime
	if samples, err := b.RecentDurations(ctx, queueName, historySamples); err == nil && len(samples) > 0 {
		var sum time.Duration
		for _, d := range samples {
			sum += d
		}
		avg = sum / time.Duration(len(samples))
	}

	pos.EstimatedWait = time.Duration(rank) * avg / time.Duration(active)
	return pos, nil
}
