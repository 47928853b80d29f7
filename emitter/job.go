package emitter

import (
	"context"
	"log"

	"github.com/vespa-engine/metrics-emitter/scheduler"
)

// EmitJobName is the name the emit job registers under in the scheduler.
const EmitJobName = "emit-metrics"

// RunRecorder persists run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary Summary) error
}

// EmitJob adapts the runner to the scheduler. The recorder may be nil when
// no journal is configured.
type EmitJob struct {
	runner   *Runner
	recorder RunRecorder
}

// NewEmitJob creates the scheduled emit job.
func NewEmitJob(runner *Runner, recorder RunRecorder) *EmitJob {
	if runner == nil {
		panic("runner cannot be nil")
	}

	return &EmitJob{
		runner:   runner,
		recorder: recorder,
	}
}

// Name implements scheduler.Job.
func (j *EmitJob) Name() string {
	return EmitJobName
}

// Run executes one emit run. It never returns an error, failures are
// captured in the recorded summary instead.
func (j *EmitJob) Run(ctx context.Context) error {
	summary := j.runner.Run(ctx)
	if j.recorder != nil {
		if err := j.recorder.RecordRun(ctx, summary); err != nil {
			log.Printf("[emitter] Failed to record run %s: %v", summary.RunID, err)
		}
	}
	return nil
}

var _ scheduler.Job = (*EmitJob)(nil)
