package runner

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"warrior/internal/usecase/scheduling"
)

// ScheduleReports adds a task to s that writes the interim report to w on
// schedule. Writes to w are serialized.
func (r *Runner) ScheduleReports(s *scheduling.Scheduler, schedule string, w io.Writer) error {
	var mu sync.Mutex
	return s.AddTask(scheduling.Task{
		Name:     "interim-report",
		Schedule: schedule,
		Timeout:  10 * time.Second,
		Run: func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			if _, err := fmt.Fprintf(w, "--- interim report, run %s ---\n", r.runID); err != nil {
				return err
			}
			return r.rec.Report(w)
		},
	})
}
