// Package poller keeps the record store in step with the congress.gov
// daily Congressional Record feed.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"congress-digest/internal/congress"
	"congress-digest/internal/logger"
	"congress-digest/internal/queue"
	"congress-digest/models"
	"congress-digest/services"
)

const jobTag = "congressional-record-poll"

// IssueSource is the upstream feed.
type IssueSource interface {
	ListIssues(ctx context.Context, offset, limit int) (*congress.Page, error)
	GetIssue(ctx context.Context, volume int, issue string) (*congress.IssueDetail, error)
}

// RecordStore persists records.
type RecordStore interface {
	Get(ctx context.Context, docID string) (*models.Record, error)
	UpsertIssue(ctx context.Context, rec *models.Record) (bool, error)
	SetSections(ctx context.Context, docID string, sections map[string][]string) error
}

// SummarizeQueue schedules background summarization.
type SummarizeQueue interface {
	EnqueueSummarize(ctx context.Context, docID string, maxWords int, queue string) (string, error)
}

// IngestRecorder counts upserted records.
type IngestRecorder interface {
	RecordIngested(created bool)
}

// Options configures a Poller.
type Options struct {
	PageSize int
	MaxPages int
	Timeout  time.Duration
	// Queue, when set, receives a summarization task for every record that
	// gains PDF links.
	Queue    SummarizeQueue
	Recorder IngestRecorder
}

// Stats describes one poll.
type Stats struct {
	Seen     int
	Created  int
	Detailed int
	Queued   int
	Failed   int
}

type Poller struct {
	source IssueSource
	store  RecordStore
	opts   Options
	log    *slog.Logger
}

func New(source IssueSource, store RecordStore, opts Options) *Poller {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	return &Poller{source: source, store: store, opts: opts, log: logger.With("component", "poller")}
}

// Schedule registers the poll on s.
func (p *Poller) Schedule(s *Scheduler, cronExpr string) error {
	return s.ScheduleJob(jobTag, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
		defer cancel()
		if _, err := p.Poll(ctx); err != nil {
			p.log.Error("poll failed", "error", err)
		}
	})
}

// Poll walks the feed newest first and stops after the first page that
// holds nothing new.
func (p *Poller) Poll(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()

	for page := 0; page < p.opts.MaxPages; page++ {
		res, err := p.source.ListIssues(ctx, page*p.opts.PageSize, p.opts.PageSize)
		if err != nil {
			return stats, fmt.Errorf("list page %d: %w", page, err)
		}

		changed := 0
		for _, issue := range res.Issues {
			stats.Seen++
			touched, err := p.ingest(ctx, issue, &stats)
			if err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				stats.Failed++
				p.log.Warn("issue ingest failed", "volume", issue.VolumeNumber, "issue", issue.IssueNumber, "error", err)
				continue
			}
			if touched {
				changed++
			}
		}

		if changed == 0 || !res.More {
			break
		}
	}

	p.log.Info("poll complete",
		"seen", stats.Seen,
		"created", stats.Created,
		"detailed", stats.Detailed,
		"queued", stats.Queued,
		"failed", stats.Failed,
		"elapsed", time.Since(start).String(),
	)
	return stats, nil
}

// ingest upserts one issue and fetches its documents when they are not
// known yet. It reports whether anything new was learned.
func (p *Poller) ingest(ctx context.Context, issue congress.Issue, stats *Stats) (bool, error) {
	rec := issue.Record()

	existing, err := p.store.Get(ctx, rec.DocID)
	switch {
	case errors.Is(err, services.ErrRecordNotFound):
		existing = nil
	case err != nil:
		return false, err
	}

	created, err := p.store.UpsertIssue(ctx, &rec)
	if err != nil {
		return false, err
	}
	if p.opts.Recorder != nil {
		p.opts.Recorder.RecordIngested(created)
	}
	if created {
		stats.Created++
	}

	if existing != nil && len(existing.Sections) > 0 {
		return created, nil
	}

	detail, err := p.source.GetIssue(ctx, issue.VolumeNumber, issue.IssueNumber)
	if err != nil {
		return true, fmt.Errorf("issue detail: %w", err)
	}
	links := detail.PDFLinks()
	if len(links) == 0 {
		// Not published yet; try again next poll.
		return created, nil
	}
	if err := p.store.SetSections(ctx, rec.DocID, links); err != nil {
		return true, err
	}
	stats.Detailed++

	if p.opts.Queue != nil && (existing == nil || !existing.HasSummary()) {
		_, err := p.opts.Queue.EnqueueSummarize(ctx, rec.DocID, 0, queue.QueueLow)
		switch {
		case err == nil:
			stats.Queued++
		case errors.Is(err, queue.ErrAlreadyQueued):
		default:
			p.log.Warn("auto summarize enqueue failed", "doc_id", rec.DocID, "error", err)
		}
	}

	return true, nil
}
