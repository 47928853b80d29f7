package journal

import (
	"context"
	"log"

	"github.com/vespa-engine/metrics-emitter/scheduler"
)

// PruneJob periodically trims the journal to its retention limit.
type PruneJob struct {
	journal *Journal
	keep    int
}

// NewPruneJob creates the journal prune job.
func NewPruneJob(journal *Journal, keep int) *PruneJob {
	if journal == nil {
		panic("journal cannot be nil")
	}
	if keep < 1 {
		keep = DefaultKeep
	}

	return &PruneJob{
		journal: journal,
		keep:    keep,
	}
}

// Name implements scheduler.Job.
func (p *PruneJob) Name() string {
	return "prune-journal"
}

// Run trims the journal once.
func (p *PruneJob) Run(ctx context.Context) error {
	deleted, err := p.journal.Prune(ctx, p.keep)
	if err != nil {
		return err
	}
	if deleted > 0 {
		log.Printf("Pruned %d journal runs, keeping the newest %d", deleted, p.keep)
	}
	return nil
}

var _ scheduler.Job = (*PruneJob)(nil)
