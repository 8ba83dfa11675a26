package deployment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pushdeploy/internal/notify"
	"pushdeploy/internal/project"
	"pushdeploy/pkg/cmdutil"
)

// Push carries the verified push metadata that ends up in notifications.
// None of it is ever passed to the commands.
type Push struct {
	Ref        string
	Commit     string
	Pusher     string
	DeliveryID string
}

// Notifier reports a finished deployment.
type Notifier interface {
	Dispatch(ctx context.Context, destinations notify.Destinations, msg notify.Message)
}

// Deployer runs a project's commands under its lock and reports the result.
type Deployer struct {
	locks    *LockManager
	notifier Notifier
	logger   *slog.Logger
}

// NewDeployer creates a deployer reporting through notifier.
func NewDeployer(logger *slog.Logger, notifier Notifier) *Deployer {
	return &Deployer{
		locks:    NewLockManager(),
		notifier: notifier,
		logger:   logger,
	}
}

// Deploy executes the project's commands and then notifies every configured
// channel exactly once, whatever the outcome.
func (d *Deployer) Deploy(ctx context.Context, proj *project.Project, push Push) *Result {
	id := uuid.NewString()
	logger := d.logger.With("project", proj.Name, "delivery", push.DeliveryID, "deployment_id", id)

	result := d.execute(ctx, proj, logger)
	result.ID = id

	if result.Success {
		logger.Info("deployment succeeded", "duration_ms", result.Duration().Milliseconds())
	} else {
		logger.Error("deployment failed", "duration_ms", result.Duration().Milliseconds(),
			"failed_command", cmdutil.FormatCommand(result.FailedCommand), "exit_code", result.ExitCode,
			"error", result.Err)
	}

	d.notifier.Dispatch(ctx, proj.Notifications, NewMessage(result, push))
	return result
}

// execute holds the project lock only while commands run.
func (d *Deployer) execute(ctx context.Context, proj *project.Project, logger *slog.Logger) *Result {
	if !d.locks.TryLock(proj.Name) {
		logger.Info("waiting for running deployment to finish")
		d.locks.Lock(proj.Name)
	}
	defer d.locks.Unlock(proj.Name)

	logger.Info("deployment started", "directory", proj.Directory, "commands", len(proj.Commands))

	runner := &Runner{
		Timeout:        proj.CommandTimeout,
		MaxOutputBytes: proj.MaxOutputBytes,
		Env:            proj.Environment,
		Secrets:        proj.Secrets(),
		Logger:         logger,
	}
	result := runner.Run(ctx, proj.Directory, proj.Commands)
	result.Project = proj.Name
	return result
}

// NewMessage builds the notification for a finished deployment.
func NewMessage(result *Result, push Push) notify.Message {
	msg := notify.Message{
		ID:          result.ID,
		Project:     result.Project,
		Status:      notify.StatusSuccess,
		Ref:         push.Ref,
		Commit:      push.Commit,
		Pusher:      push.Pusher,
		FailedIndex: result.FailedIndex,
		Output:      result.Output,
		Duration:    result.Duration().Round(time.Millisecond),
		Timestamp:   result.FinishedAt,
	}
	if !result.Success {
		msg.Status = notify.StatusFailed
		msg.FailedCommand = cmdutil.FormatCommand(result.FailedCommand)
		if result.Err != nil {
			msg.Error = result.Err.Error()
		}
	}
	return msg
}
