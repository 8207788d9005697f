package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jkaninda/okapi"

	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/scheduler"
)

// CronJobs is the scheduler surface exposed over HTTP.
type CronJobs interface {
	Jobs() []scheduler.JobStatus
	RunNow(ctx context.Context, name string) (*orchestrator.TaskResult, error)
}

// CronJobResponse is the JSON response for cron job endpoints.
type CronJobResponse struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Workflow  string     `json:"workflow,omitempty"`
	Running   bool       `json:"running"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

func toCronJobResponse(j scheduler.JobStatus) CronJobResponse {
	resp := CronJobResponse{
		Name:     j.Name,
		Schedule: j.Schedule,
		Workflow: j.Workflow,
		Running:  j.Running,
	}
	if !j.Next.IsZero() {
		next := j.Next
		resp.NextRunAt = &next
	}
	if !j.Prev.IsZero() {
		prev := j.Prev
		resp.LastRunAt = &prev
	}
	return resp
}

func (g *Gateway) handleCronJobList(c *okapi.Context) error {
	jobs := g.deps.Cron.Jobs()
	resp := make([]CronJobResponse, len(jobs))
	for i, j := range jobs {
		resp[i] = toCronJobResponse(j)
	}
	return c.OK(resp)
}

func (g *Gateway) handleCronJobTrigger(c *okapi.Context) error {
	userID := c.GetString("userID")
	if err := g.config.RateLimiter.Allow(userID); err != nil {
		return c.AbortTooManyRequests("rate limit exceeded")
	}
	name := c.Param("name")

	res, err := g.deps.Cron.RunNow(c.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "cron job not found"})
	case errors.Is(err, scheduler.ErrJobRunning):
		return c.JSON(http.StatusConflict, ErrorBody{Error: "cron job already running"})
	case err != nil:
		g.logger.Error("cron job manual trigger failed",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("cron job trigger failed")
	}

	g.logger.Info("cron job manually triggered",
		slog.String("job", name),
		slog.String("triggered_by", userID),
		slog.String("task_id", res.TaskID.String()),
	)
	return c.OK(res)
}
