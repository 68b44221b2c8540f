package report

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	redisclient "github.com/hackgods/telehealth-scheduling/internal/redis"
)

// 10:00 IST on 2024-01-15
var fixedNow = time.Date(2024, time.January, 15, 4, 30, 0, 0, time.UTC)

type executorFixture struct {
	repo   *memRepo
	mailer *fakeMailer
	calc   *Calculator
}

func newExecutorFixture() *executorFixture {
	return &executorFixture{
		repo:   newMemRepo(),
		mailer: &fakeMailer{fail: map[string]bool{}, panicOn: map[string]bool{}, hang: map[string]bool{}},
		calc:   NewCalculator(ist, func() time.Time { return fixedNow }),
	}
}

func (f *executorFixture) executor(source DataSource, opts ExecutorOptions) *Executor {
	opts.Mailer = f.mailer
	opts.Logger = zerolog.Nop()
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return NewExecutor(f.repo, source, f.calc, opts)
}

func dueSchedule(recipients ...string) ScheduledReport {
	return ScheduledReport{
		ReportType:   "appointment-volume",
		Name:         "Daily volume",
		CronSchedule: "0 9 * * *",
		Frequency:    Daily,
		Timezone:     "Asia/Kolkata",
		Recipients:   recipients,
		Format:       FormatCSV,
		Active:       true,
		NextRun:      fixedNow.Add(-time.Hour),
	}
}

func TestExecuteSuccess(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com", "b@example.com", "c@example.com"))

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 3, res.RecipientsSent)
	assert.Zero(t, res.RecipientsFailed)
	assert.Equal(t, "daily-volume_20240115_0430.csv", res.FileName)
	assert.Equal(t, time.Date(2024, time.January, 16, 3, 30, 0, 0, time.UTC), res.NextRun)

	csv, err := base64.StdEncoding.DecodeString(res.ReportBase64)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "confirmed,12")

	execs := f.repo.executionsFor(sched.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, StatusSuccess, execs[0].Status)
	assert.NotNil(t, execs[0].FinishedAt)
	assert.Nil(t, execs[0].ErrorMessage)
	assert.Equal(t, res.FileName, execs[0].FileName)

	stored := f.repo.schedule(sched.ID)
	require.NotNil(t, stored.LastRunStatus)
	assert.Equal(t, StatusSuccess, *stored.LastRunStatus)
	assert.Nil(t, stored.LastRunError)
	assert.Equal(t, res.NextRun, stored.NextRun)
	assert.True(t, stored.NextRun.After(fixedNow))

	require.Len(t, f.mailer.sent, 3)
	assert.Equal(t, "a@example.com", f.mailer.sent[0].To)
	require.Len(t, f.mailer.sent[0].Attachments, 1)
	assert.Equal(t, "text/csv", f.mailer.sent[0].Attachments[0].ContentType)
}

func TestExecuteOneRecipientFails(t *testing.T) {
	f := newExecutorFixture()
	f.mailer.fail["b@example.com"] = true
	sched := f.repo.add(dueSchedule("a@example.com", "b@example.com", "c@example.com"))

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 2, res.RecipientsSent)
	assert.Equal(t, 1, res.RecipientsFailed)
	assert.Contains(t, res.Error, "b@example.com")

	execs := f.repo.executionsFor(sched.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, 3, execs[0].RecipientsSent+execs[0].RecipientsFailed)
	require.NotNil(t, execs[0].ErrorMessage)
	assert.Contains(t, *execs[0].ErrorMessage, "b@example.com")
}

func TestExecuteHangingRecipientTimesOut(t *testing.T) {
	f := newExecutorFixture()
	f.mailer.hang["slow@example.com"] = true
	sched := f.repo.add(dueSchedule("slow@example.com", "fast@example.com"))

	const timeout = 50 * time.Millisecond
	start := time.Now()
	res, err := f.executor(fakeSource{}, ExecutorOptions{SendTimeout: timeout}).Execute(context.Background(), sched.ID, true)
	took := time.Since(start)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.RecipientsSent)
	assert.Equal(t, 1, res.RecipientsFailed)
	assert.Contains(t, res.Error, "slow@example.com")
	assert.GreaterOrEqual(t, took, timeout)
	assert.Less(t, took, 4*timeout, "one hanging recipient must cost one send timeout")

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "fast@example.com", f.mailer.sent[0].To)

	execs := f.repo.executionsFor(sched.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, StatusSuccess, execs[0].Status)
	assert.Equal(t, 1, execs[0].RecipientsFailed)
}

func TestExecuteMailerPanicIsContainedPerRecipient(t *testing.T) {
	f := newExecutorFixture()
	f.mailer.panicOn["a@example.com"] = true
	sched := f.repo.add(dueSchedule("a@example.com", "b@example.com"))

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecipientsSent)
	assert.Equal(t, 1, res.RecipientsFailed)
}

func TestExecuteGenerateFailure(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com", "b@example.com"))

	res, err := f.executor(fakeSource{err: errors.New("relation does not exist")}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Zero(t, res.RecipientsSent)
	assert.Equal(t, 2, res.RecipientsFailed)
	assert.Empty(t, res.ReportBase64)
	assert.Contains(t, res.Error, "relation does not exist")

	execs := f.repo.executionsFor(sched.ID)
	require.Len(t, execs, 1)
	assert.Equal(t, StatusFailed, execs[0].Status)

	stored := f.repo.schedule(sched.ID)
	assert.Equal(t, StatusFailed, *stored.LastRunStatus)
	require.NotNil(t, stored.LastRunError)
	assert.True(t, stored.NextRun.After(fixedNow), "a failed run keeps recurring")
	assert.Empty(t, f.mailer.sent)
}

func TestExecutePanicInGeneration(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com"))

	res, err := f.executor(fakeSource{panicMsg: "nil map"}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.RecipientsFailed)
	assert.Contains(t, res.Error, "nil map")
	assert.Len(t, f.repo.executionsFor(sched.ID), 1)
}

func TestExecuteUnknownRenderer(t *testing.T) {
	f := newExecutorFixture()
	s := dueSchedule("a@example.com")
	s.Format = Format("docx")
	sched := f.repo.add(s)

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.RecipientsSent+res.RecipientsFailed)
}

func TestExecuteWithoutEmail(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com"))

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Zero(t, res.RecipientsSent)
	assert.Zero(t, res.RecipientsFailed)
	assert.NotEmpty(t, res.ReportBase64)
	assert.Empty(t, f.mailer.sent)
}

func TestExecuteUnknownSchedule(t *testing.T) {
	f := newExecutorFixture()

	res, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), uuid.New(), true)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrReportNotFound)
	assert.Empty(t, f.repo.executions)
}

func TestExecutePersistFailure(t *testing.T) {
	f := newExecutorFixture()
	f.repo.finishErr = errors.New("connection reset")
	sched := f.repo.add(dueSchedule())

	_, err := f.executor(fakeSource{}, ExecutorOptions{}).Execute(context.Background(), sched.ID, true)
	assert.ErrorContains(t, err, "connection reset")
}

func TestProcessDue(t *testing.T) {
	f := newExecutorFixture()

	ok := f.repo.add(dueSchedule("a@example.com"))

	failing := dueSchedule("a@example.com", "b@example.com")
	failing.ReportType = "broken"
	failing = *f.repo.add(failing)

	later := dueSchedule("a@example.com")
	later.NextRun = fixedNow.Add(time.Hour)
	later = *f.repo.add(later)

	inactive := dueSchedule("a@example.com")
	inactive.Active = false
	inactive = *f.repo.add(inactive)

	source := sourceByType{"broken": errors.New("unknown report type")}
	summary, err := f.executor(source, ExecutorOptions{}).ProcessDue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ProcessSummary{Due: 2, Succeeded: 1, Failed: 1}, summary)
	assert.Len(t, f.repo.executionsFor(ok.ID), 1)
	assert.Len(t, f.repo.executionsFor(failing.ID), 1)
	assert.Empty(t, f.repo.executionsFor(later.ID))
	assert.Empty(t, f.repo.executionsFor(inactive.ID))

	for _, id := range []uuid.UUID{ok.ID, failing.ID} {
		assert.True(t, f.repo.schedule(id).NextRun.After(fixedNow))
	}

	// nothing is due on the next poll
	summary, err = f.executor(source, ExecutorOptions{}).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Due)
}

func TestProcessDueSkipsLockedSchedules(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com"))

	exec := f.executor(fakeSource{}, ExecutorOptions{Locker: busyLocker{err: redisclient.ErrLockNotAcquired}})
	summary, err := exec.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProcessSummary{Due: 1, Skipped: 1}, summary)
	assert.Empty(t, f.repo.executionsFor(sched.ID))
}

func TestProcessDueRechecksUnderLock(t *testing.T) {
	f := newExecutorFixture()
	sched := f.repo.add(dueSchedule("a@example.com"))

	locker := lockerFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
		// another worker finished the run while we waited
		s := f.repo.schedule(sched.ID)
		s.NextRun = fixedNow.Add(24 * time.Hour)
		require.NoError(t, f.repo.UpdateSchedule(ctx, s))
		return fn(ctx)
	})

	summary, err := f.executor(fakeSource{}, ExecutorOptions{Locker: locker}).ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, f.repo.executionsFor(sched.ID))
}

func TestProcessDueStopsOnCancelledContext(t *testing.T) {
	f := newExecutorFixture()
	f.repo.add(dueSchedule("a@example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.executor(fakeSource{}, ExecutorOptions{}).ProcessDue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type sourceByType map[string]error

func (s sourceByType) Generate(ctx context.Context, reportType string, at time.Time) (*Dataset, error) {
	if err, ok := s[reportType]; ok {
		return nil, err
	}
	return fakeSource{}.Generate(ctx, reportType, at)
}

type lockerFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (l lockerFunc) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return l(ctx, fn)
}
