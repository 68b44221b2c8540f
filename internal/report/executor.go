package report

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/mail"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/notify"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

const (
	defaultSendTimeout = 30 * time.Second
	finishTimeout      = 10 * time.Second
)

var errNotDue = errors.New("scheduled report no longer due")

type ExecutorOptions struct {
	Renderers   Renderers
	Mailer      mail.Sender
	SendTimeout time.Duration
	// Locker keeps two workers from running the same schedule. Optional.
	Locker  redisclient.KeyLocker
	Pusher  notify.Pusher
	Metrics *metrics.Collector
	Logger  zerolog.Logger
}

// Executor runs scheduled reports: generate, render, deliver, record.
type Executor struct {
	repo        Repository
	source      DataSource
	calc        *Calculator
	renderers   Renderers
	mailer      mail.Sender
	sendTimeout time.Duration
	locker      redisclient.KeyLocker
	pusher      notify.Pusher
	metrics     *metrics.Collector
	logger      zerolog.Logger
}

func NewExecutor(repo Repository, source DataSource, calc *Calculator, opts ExecutorOptions) *Executor {
	if opts.Renderers == nil {
		opts.Renderers = DefaultRenderers()
	}
	if opts.Mailer == nil {
		opts.Mailer = mail.NewLogSender(opts.Logger)
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	if opts.Pusher == nil {
		opts.Pusher = notify.Nop{}
	}
	return &Executor{
		repo:        repo,
		source:      source,
		calc:        calc,
		renderers:   opts.Renderers,
		mailer:      opts.Mailer,
		sendTimeout: opts.SendTimeout,
		locker:      opts.Locker,
		pusher:      opts.Pusher,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
}

// Execute runs one schedule now and records exactly one execution. A failed
// run is reported in the result, not as an error; errors mean the schedule
// does not exist or the run could not be recorded. An unknown id returns
// ErrReportNotFound, which callers treat as nothing to execute.
func (e *Executor) Execute(ctx context.Context, scheduleID uuid.UUID, sendEmail bool) (*ExecutionResult, error) {
	sched, err := e.repo.GetSchedule(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load scheduled report: %w", err)
	}
	return e.execute(ctx, sched, sendEmail)
}

// ProcessDue executes every active schedule whose next run has passed, one
// after another. A failing schedule never stops the rest of the poll.
func (e *Executor) ProcessDue(ctx context.Context) (ProcessSummary, error) {
	e.metrics.DuePoll()

	now := e.calc.Now()
	due, err := e.repo.ListDue(ctx, now)
	if err != nil {
		return ProcessSummary{}, fmt.Errorf("list due reports: %w", err)
	}

	summary := ProcessSummary{Due: len(due)}
	for i := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		sched := due[i]
		res, err := e.processOne(ctx, &sched, now)
		switch {
		case errors.Is(err, errNotDue),
			errors.Is(err, ErrReportNotFound),
			errors.Is(err, redisclient.ErrLockNotAcquired):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			e.logger.Error().Err(err).Stringer("schedule_id", sched.ID).Msg("scheduled report run aborted")
		case res.Success:
			summary.Succeeded++
		default:
			summary.Failed++
		}
	}

	return summary, nil
}

func (e *Executor) processOne(ctx context.Context, sched *ScheduledReport, now time.Time) (res *ExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing scheduled report: %v", r)
		}
	}()

	if e.locker == nil {
		return e.execute(ctx, sched, true)
	}

	err = e.locker.WithLock(ctx, redisclient.ReportLockKey(sched.ID), func(lockCtx context.Context) error {
		// another worker may have run it between the listing and the lock
		current, err := e.repo.GetSchedule(lockCtx, sched.ID)
		if err != nil {
			return err
		}
		if !current.Active || current.NextRun.After(now) {
			return errNotDue
		}
		res, err = e.execute(lockCtx, current, true)
		return err
	})
	return res, err
}

type runOutcome struct {
	artifact []byte
	fileName string
	sent     int
	failed   int
	failedTo []string
	err      error
}

func (e *Executor) execute(ctx context.Context, sched *ScheduledReport, sendEmail bool) (*ExecutionResult, error) {
	started := e.calc.Now()
	exec := &Execution{
		ID:         uuid.New(),
		ScheduleID: sched.ID,
		ExecutedAt: started,
		Status:     StatusRunning,
	}
	if err := e.repo.InsertExecution(ctx, exec); err != nil {
		if errors.Is(err, ErrReportNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("record report execution: %w", err)
	}

	out := e.run(ctx, sched, sendEmail, started)

	recipients := 0
	if sendEmail {
		recipients = len(sched.Recipients)
	}
	if out.err != nil {
		out.failed = recipients - out.sent
	}

	finished := e.calc.Now()
	status := StatusSuccess
	var errMsg *string
	switch {
	case out.err != nil:
		status = StatusFailed
		msg := out.err.Error()
		errMsg = &msg
	case len(out.failedTo) > 0:
		msg := "delivery failed for: " + strings.Join(out.failedTo, ", ")
		errMsg = &msg
	}

	exec.Status = status
	exec.FinishedAt = &finished
	exec.RecipientsSent = out.sent
	exec.RecipientsFailed = out.failed
	exec.ErrorMessage = errMsg
	exec.FileName = out.fileName
	exec.Artifact = out.artifact
	exec.DurationMs = finished.Sub(started).Milliseconds()

	sched.LastRun = &started
	sched.LastRunStatus = &status
	sched.LastRunError = nil
	if status == StatusFailed {
		sched.LastRunError = errMsg
	}
	// a failed run must keep recurring
	sched.NextRun = e.calc.NextRunFrom(finished, sched)

	// a cancelled caller must not leave the execution stuck in running
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := e.repo.FinishRun(finishCtx, exec, sched); err != nil {
		return nil, fmt.Errorf("finalise report execution %s: %w", exec.ID, err)
	}

	e.metrics.ReportExecuted(string(status), string(sched.Format), out.sent, out.failed, finished.Sub(started))

	event := e.logger.Info()
	if status == StatusFailed {
		event = e.logger.Warn().Str("error", *errMsg)
	}
	event.
		Stringer("schedule_id", sched.ID).
		Stringer("execution_id", exec.ID).
		Str("status", string(status)).
		Int("sent", out.sent).
		Int("failed", out.failed).
		Time("next_run", sched.NextRun).
		Dur("took", finished.Sub(started)).
		Msg("scheduled report executed")

	e.pusher.Push(ctx, sched.CreatedBy, notify.EventReportExecuted, map[string]any{
		"schedule_id":       sched.ID.String(),
		"execution_id":      exec.ID.String(),
		"status":            string(status),
		"recipients_sent":   out.sent,
		"recipients_failed": out.failed,
		"next_run":          sched.NextRun,
	})

	result := &ExecutionResult{
		ExecutionID:      exec.ID,
		Success:          status == StatusSuccess,
		RecipientsSent:   out.sent,
		RecipientsFailed: out.failed,
		FileName:         out.fileName,
		NextRun:          sched.NextRun,
	}
	if len(out.artifact) > 0 {
		result.ReportBase64 = base64.StdEncoding.EncodeToString(out.artifact)
	}
	if errMsg != nil {
		result.Error = *errMsg
	}
	return result, nil
}

// run generates, renders and delivers. Any error or panic ends the run but
// keeps the counts reached so far.
func (e *Executor) run(ctx context.Context, sched *ScheduledReport, sendEmail bool, at time.Time) (out runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic: %v", r)
			e.logger.Error().
				Stringer("schedule_id", sched.ID).
				Str("stack", string(debug.Stack())).
				Msgf("recovered panic in report run: %v", r)
		}
	}()

	ds, err := e.source.Generate(ctx, sched.ReportType, at)
	if err != nil {
		out.err = fmt.Errorf("generate report data: %w", err)
		return out
	}

	renderer, err := e.renderers.For(sched.Format)
	if err != nil {
		out.err = err
		return out
	}
	data, err := renderer.Render(ds)
	if err != nil {
		out.err = fmt.Errorf("render %s: %w", sched.Format, err)
		return out
	}
	out.artifact = data
	out.fileName = FileName(sched.Name, at, renderer.Extension())

	if !sendEmail || len(sched.Recipients) == 0 {
		return out
	}

	local := at.In(e.calc.Location(sched.Timezone))
	msg := mail.Message{
		Subject: fmt.Sprintf("%s - %s", sched.Name, local.Format("02 Jan 2006")),
		Body: fmt.Sprintf("Please find attached the %s report generated on %s.\n\nThis is an automated message from the telehealth scheduling service.\n",
			ds.Title, local.Format("02 Jan 2006 15:04 MST")),
		Attachments: []mail.Attachment{{
			Name:        out.fileName,
			ContentType: renderer.ContentType(),
			Data:        data,
		}},
	}

	for _, to := range sched.Recipients {
		msg.To = to
		if err := e.send(ctx, msg); err != nil {
			out.failed++
			out.failedTo = append(out.failedTo, to)
			e.logger.Warn().Err(err).Stringer("schedule_id", sched.ID).Str("to", to).Msg("report delivery failed")
			continue
		}
		out.sent++
	}
	return out
}

func (e *Executor) send(ctx context.Context, msg mail.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic sending mail: %v", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()
	return e.mailer.Send(sendCtx, msg)
}
