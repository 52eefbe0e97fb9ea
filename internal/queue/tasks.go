package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"congress-digest/internal/config"
	"congress-digest/internal/logger"
	"congress-digest/internal/summarizer"
	"congress-digest/services"

	"github.com/hibiken/asynq"
)

const (
	TaskSummarizeRecord = "record:summarize"

	QueueDefault = "default"
	QueueLow     = "low"
)

// ErrAlreadyQueued is returned when the record already has a pending task.
var ErrAlreadyQueued = errors.New("summarization already queued")

type SummarizePayload struct {
	DocID    string `json:"doc_id"`
	MaxWords int    `json:"max_words,omitempty"`
}

// RedisConnOpt builds the asynq connection from the shared Redis settings.
func RedisConnOpt(cfg *config.Config) (asynq.RedisClientOpt, error) {
	opt, err := config.RedisOptions(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}

// NewSummarizeTask creates a summarization task. The task id is derived from
// the record so one record is never queued twice at the same time.
func NewSummarizeTask(docID string, maxWords int, queue string) (*asynq.Task, error) {
	payload, err := json.Marshal(SummarizePayload{DocID: docID, MaxWords: maxWords})
	if err != nil {
		return nil, err
	}
	if queue == "" {
		queue = QueueDefault
	}

	return asynq.NewTask(
		TaskSummarizeRecord,
		payload,
		asynq.TaskID(summarizeTaskID(docID, maxWords)),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Hour),
		asynq.Retention(24*time.Hour),
		asynq.Queue(queue),
	), nil
}

func summarizeTaskID(docID string, maxWords int) string {
	return fmt.Sprintf("summarize:%s:w%d", docID, maxWords)
}

type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type taskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	Close() error
}

// Enqueuer schedules background summarizations.
type Enqueuer struct {
	client    taskClient
	inspector taskInspector
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
	}
}

// EnqueueSummarize queues docID and returns the task id. A finished task kept
// for retention does not block a new one; a pending or running task does.
func (e *Enqueuer) EnqueueSummarize(ctx context.Context, docID string, maxWords int, queue string) (string, error) {
	if queue == "" {
		queue = QueueDefault
	}
	task, err := NewSummarizeTask(docID, maxWords, queue)
	if err != nil {
		return "", err
	}
	id := summarizeTaskID(docID, maxWords)

	info, err := e.client.EnqueueContext(ctx, task)
	if conflict(err) {
		if !e.release(queue, id) {
			return id, ErrAlreadyQueued
		}
		info, err = e.client.EnqueueContext(ctx, task)
		if conflict(err) {
			return id, ErrAlreadyQueued
		}
	}
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", docID, err)
	}
	return info.ID, nil
}

// release deletes the task holding id when it has already finished.
func (e *Enqueuer) release(queue, id string) bool {
	info, err := e.inspector.GetTaskInfo(queue, id)
	if errors.Is(err, asynq.ErrTaskNotFound) {
		return true
	}
	if err != nil {
		logger.Warn("Task lookup failed", "task_id", id, "error", err)
		return false
	}
	if info.State != asynq.TaskStateCompleted && info.State != asynq.TaskStateArchived {
		return false
	}
	if err := e.inspector.DeleteTask(queue, id); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
		logger.Warn("Finished task could not be removed", "task_id", id, "state", info.State.String(), "error", err)
		return false
	}
	return true
}

func conflict(err error) bool {
	return errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask)
}

func (e *Enqueuer) Close() error {
	return errors.Join(e.client.Close(), e.inspector.Close())
}

// RecordSummarizer summarizes stored records.
type RecordSummarizer interface {
	SummarizeRecord(ctx context.Context, docID string, maxWords int, emitter summarizer.Emitter) (*summarizer.Result, error)
}

// TaskProcessor handles queued tasks.
type TaskProcessor struct {
	summaries RecordSummarizer
}

func NewTaskProcessor(summaries RecordSummarizer) *TaskProcessor {
	return &TaskProcessor{summaries: summaries}
}

// NewServeMux registers every task handler.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSummarizeRecord, p.SummarizeRecord)
	return mux
}

func (p *TaskProcessor) SummarizeRecord(ctx context.Context, t *asynq.Task) error {
	var payload SummarizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	if payload.DocID == "" {
		return fmt.Errorf("missing doc_id: %w", asynq.SkipRetry)
	}

	log := logger.With("task", TaskSummarizeRecord, "doc_id", payload.DocID)
	log.Info("Summarizing record")

	res, err := p.summaries.SummarizeRecord(ctx, payload.DocID, payload.MaxWords, nil)
	if err != nil {
		if permanent(err) {
			log.Warn("Summarization failed permanently", "kind", summarizer.KindOf(err), "error", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		// Completed chunks are cached, so a retry resumes where this one stopped.
		log.Error("Summarization failed, will retry", "kind", summarizer.KindOf(err), "error", err)
		return err
	}

	log.Info("Record summarized",
		"chunks", res.TotalChunks,
		"cached_chunks", res.CachedChunks,
		"from_cache", res.FromCache,
	)
	return nil
}

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	switch {
	case errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, services.ErrNoPDF),
		errors.Is(err, summarizer.ErrInvalidRequest),
		errors.Is(err, summarizer.ErrExtract):
		return true
	}
	return false
}
