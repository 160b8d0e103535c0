package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chisel3d/chisel/pkg/blob"
	"github.com/chisel3d/chisel/pkg/kernel"
	"github.com/chisel3d/chisel/pkg/queue"
	"github.com/chisel3d/chisel/pkg/splitter"
	"github.com/chisel3d/chisel/pkg/stl"
)

// ErrCancelled is raised at a cancellation checkpoint when the job's
// flag is set.
var ErrCancelled = errors.New("jobs: job was cancelled")

// cancelReason is the user-visible failure reason for cancelled jobs.
const cancelReason = "Job was cancelled"

// dequeueBlock bounds each blocking dequeue so the loop can observe
// shutdown and restart signals.
const dequeueBlock = 5 * time.Second

// restartPoll is how often the worker checks for the restart signal.
const restartPoll = 10 * time.Second

// DefaultConcurrency is the number of jobs one worker processes at a
// time when WORKER_CONCURRENCY is unset.
const DefaultConcurrency = 2

// Worker pulls split jobs from the broker and runs them through the
// engine. Each job gets its own kernel instance: kernel objects are
// never shared across concurrent jobs.
type Worker struct {
	Broker  queue.Broker
	Uploads blob.Store
	Results blob.Store
	// NewKernel builds a kernel for one job.
	NewKernel func() (kernel.Kernel, error)
	Log       *slog.Logger

	Queue       string
	Policy      Policy
	Concurrency int
	// WorkDir is the root for per-job scratch directories.
	WorkDir string
}

// Run processes jobs until the context is cancelled or a restart is
// signalled. It returns nil on a clean shutdown.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger()
	if w.Concurrency <= 0 {
		w.Concurrency = DefaultConcurrency
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// Restart signal: exit 0 within the poll interval so an external
	// supervisor can cycle the process.
	go func() {
		ticker := time.NewTicker(restartPoll)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				requested, err := w.Broker.RestartRequested(runCtx)
				if err == nil && requested {
					log.Info("restart signal observed, draining")
					stop()
					return
				}
			}
		}
	}()

	// Stall reaper: jobs whose lock lapsed are failed, never retried.
	go func() {
		ticker := time.NewTicker(w.Policy.StallCheckEvery)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				stalled, err := w.Broker.ReapStalled(runCtx, w.Queue, w.Policy.RetainFailed)
				if err != nil {
					log.Warn("stall check failed", "err", err)
					continue
				}
				for _, id := range stalled {
					log.Warn("job stalled", "job", id)
				}
			}
		}
	}()

	slots := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup
	for {
		select {
		case <-runCtx.Done():
			wg.Wait()
			return nil
		case slots <- struct{}{}:
		}

		job, err := w.Broker.Dequeue(runCtx, w.Queue, w.Policy.LockTTL, dequeueBlock)
		if err != nil {
			<-slots
			if runCtx.Err() != nil {
				wg.Wait()
				return nil
			}
			log.Error("dequeue failed", "err", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			<-slots
			continue
		}

		wg.Add(1)
		go func(job *queue.Job) {
			defer wg.Done()
			defer func() { <-slots }()
			w.process(runCtx, job)
		}(job)
	}
}

// process runs one job end to end: download, split, upload, archive.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log := w.logger().With("job", job.ID, "queue", w.Queue)
	started := time.Now()
	jobsStarted.WithLabelValues(w.Queue).Inc()

	jobCtx, cancel := context.WithTimeout(ctx, w.Policy.HardTimeout)
	defer cancel()

	// Keep the broker lock alive while the job runs.
	go func() {
		ticker := time.NewTicker(w.Policy.RenewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if err := w.Broker.RenewLock(jobCtx, w.Queue, job.ID, w.Policy.LockTTL); err != nil {
					log.Warn("lock renewal failed", "err", err)
				}
			}
		}
	}()

	workDir := filepath.Join(w.WorkDir, job.ID)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("scratch cleanup failed", "dir", workDir, "err", err)
		}
	}()

	result, err := w.run(jobCtx, job, workDir, log)
	if err != nil {
		reason := failureReason(err)
		log.Error("job failed", "reason", reason, "err", err)
		jobsFailed.WithLabelValues(w.Queue).Inc()
		if ferr := w.Broker.Fail(ctx, w.Queue, job.ID, reason, w.Policy.RetainFailed); ferr != nil {
			log.Error("could not record failure", "err", ferr)
		}
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		log.Error("could not encode result", "err", err)
		_ = w.Broker.Fail(ctx, w.Queue, job.ID, "Internal error", w.Policy.RetainFailed)
		return
	}
	if err := w.Broker.Complete(ctx, w.Queue, job.ID, data, w.Policy.RetainCompleted); err != nil {
		log.Error("could not record completion", "err", err)
		return
	}
	jobsCompleted.WithLabelValues(w.Queue).Inc()
	jobDuration.WithLabelValues(w.Queue).Observe(time.Since(started).Seconds())
	log.Info("job completed", "parts", result.TotalParts, "took", time.Since(started))
}

// run is the cancellable body of process.
func (w *Worker) run(ctx context.Context, job *queue.Job, workDir string, log *slog.Logger) (*Result, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("jobs: bad payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	opts, err := payload.Options()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("jobs: scratch dir: %w", err)
	}

	progress := func(percent int, message string) {
		if err := w.Broker.SetProgress(ctx, w.Queue, job.ID, percent, message); err != nil {
			log.Warn("progress update failed", "err", err)
		}
		log.Debug("progress", "percent", percent, "message", message)
	}

	// Checkpoint: before download.
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return nil, err
	}

	progress(10, "Downloading model")
	data, err := w.Uploads.Get(ctx, payload.FileID)
	if err != nil {
		return nil, fmt.Errorf("jobs: download %s: %w", payload.FileID, err)
	}
	// Keep a scratch copy so a crashed job can be inspected before the
	// directory is reaped.
	if err := os.WriteFile(filepath.Join(workDir, "input.stl"), data, 0o644); err != nil {
		return nil, fmt.Errorf("jobs: scratch write: %w", err)
	}
	progress(20, "Download complete")

	// Checkpoint: after download, before the expensive CSG phase.
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return nil, err
	}

	k, err := w.NewKernel()
	if err != nil {
		return nil, fmt.Errorf("jobs: kernel: %w", err)
	}
	engine := splitter.NewEngine(k, log)

	// The engine is compute-bound and not interruptible; run it on its
	// own goroutine and race it against the job deadline.
	type splitOut struct {
		res *splitter.Result
		err error
	}
	ch := make(chan splitOut, 1)
	go func() {
		res, err := engine.Split(data, opts, progress)
		ch <- splitOut{res, err}
	}()

	var res *splitter.Result
	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		res = out.res
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Checkpoint: after CSG processing.
	if err := w.checkpoint(ctx, job.ID); err != nil {
		return nil, err
	}

	result := &Result{
		TotalParts:         res.TotalParts,
		Sections:           res.Sections,
		OriginalDimensions: Dimensions{X: res.OriginalDimensions[0], Y: res.OriginalDimensions[1], Z: res.OriginalDimensions[2]},
	}
	for i, part := range res.Parts {
		key := ResultKey(job.ID, part.Name)
		if err := w.Results.Put(ctx, key, bytes.NewReader(part.Data), blob.ContentTypeSTL); err != nil {
			return nil, fmt.Errorf("jobs: upload %s: %w", key, err)
		}
		result.Parts = append(result.Parts, PartResult{Name: part.Name, Key: key, Section: part.Section})
		progress(splitter.PercentPartsDone+15*(i+1)/len(res.Parts),
			fmt.Sprintf("Uploading part %d/%d", i+1, len(res.Parts)))
	}

	progress(90, "Building archive")
	archive, err := splitter.BuildArchive(res.Parts)
	if err != nil {
		return nil, err
	}
	zipKey := ResultKey(job.ID, splitter.ArchiveName)
	if err := w.Results.Put(ctx, zipKey, bytes.NewReader(archive), blob.ContentTypeZip); err != nil {
		return nil, fmt.Errorf("jobs: upload %s: %w", zipKey, err)
	}
	result.ZipKey = zipKey

	progress(95, "Finalizing")
	return result, nil
}

// checkpoint observes the cooperative cancellation flag.
func (w *Worker) checkpoint(ctx context.Context, id string) error {
	cancelled, err := w.Broker.Cancelled(ctx, w.Queue, id)
	if err != nil {
		return err
	}
	if cancelled {
		return ErrCancelled
	}
	return nil
}

func (w *Worker) logger() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

// failureReason maps engine errors to the user-facing message recorded
// on the failed job.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return cancelReason
	case errors.Is(err, context.DeadlineExceeded):
		return "Job timed out"
	case errors.Is(err, stl.ErrInvalidFormat):
		return "Invalid STL file"
	case errors.Is(err, splitter.ErrNonManifold):
		return "Model is not watertight; repair the mesh and try again"
	case errors.Is(err, splitter.ErrTooComplex):
		return "File is too large or complex to process"
	case errors.Is(err, splitter.ErrEmptyResult):
		return "Model is outside the cutting bounds"
	default:
		return err.Error()
	}
}
