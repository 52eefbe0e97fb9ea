package poller

import (
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs jobs on cron schedules. A job never overlaps with itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

func NewScheduler() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.scheduler.StartAsync()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// ScheduleJob schedules job under tag using a standard 5-field cron expression.
func (s *Scheduler) ScheduleJob(tag, cronExpr string, job func()) error {
	_, err := s.scheduler.Cron(cronExpr).Tag(tag).SingletonMode().Do(job)
	return err
}

// RunNow triggers the job with tag immediately.
func (s *Scheduler) RunNow(tag string) error {
	return s.scheduler.RunByTag(tag)
}

// NextRun reports when the job with tag runs next.
func (s *Scheduler) NextRun(tag string) (time.Time, bool) {
	jobs, err := s.scheduler.FindJobsByTag(tag)
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}
