package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/config"
	"github.com/hackgods/telehealth-scheduling/internal/db"
	"github.com/hackgods/telehealth-scheduling/internal/logging"
	"github.com/hackgods/telehealth-scheduling/internal/report"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

const (
	doctorCount         = 40
	patientCount        = 2000
	appointmentsPerDoc  = 25
	appointmentDuration = 30
	seedDays            = 14
)

// passLocker runs fn directly. The seed is a single process and the
// repository still takes the per-doctor advisory lock.
type passLocker struct{}

func (passLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLogger := logging.New("prod", "seed")
		fatalLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, "seed")
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	clinicLoc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("load clinic timezone")
	}

	faker := gofakeit.New(time.Now().UnixNano())

	doctors, err := seedDoctors(ctx, pool, faker, doctorCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	logger.Info().Int("count", len(doctors)).Msg("doctors seeded")

	patients, err := seedPatients(ctx, pool, faker, patientCount)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	logger.Info().Int("count", len(patients)).Msg("patients seeded")

	n, err := seedAppointments(ctx, pool, faker, doctors, patients, clinicLoc)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed appointments")
	}
	logger.Info().Int("count", n).Msg("appointments seeded")

	admin := auth.Caller{ID: uuid.New(), Role: auth.RoleAdmin}

	if err := seedTimeBlocks(ctx, pool, faker, doctors, admin, clinicLoc, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed time blocks")
	}

	if err := seedReports(ctx, pool, faker, admin, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed scheduled reports")
	}

	adminToken, err := auth.Sign(cfg.JWTSecret, admin, 24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign admin token")
	}
	doctorToken, err := auth.Sign(cfg.JWTSecret, auth.Caller{ID: doctors[0], Role: auth.RoleDoctor}, 24*time.Hour)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign doctor token")
	}

	fmt.Printf("\nadmin token (24h):\n%s\n\ndoctor %s token (24h):\n%s\n", adminToken, doctors[0], doctorToken)
	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	ids := make([]uuid.UUID, 0, count)
	err := db.InTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO doctors (id, name, specialty, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, "Dr. "+faker.Name(), specialties[faker.Number(0, len(specialties)-1)], faker.Email())
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			id := uuid.New()
			batch.Queue(`
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, faker.Name(), faker.Email())
			ids = append(ids, id)
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// seedAppointments books half-hour slots between 09:00 and 17:00 clinic time,
// never twice in the same slot for one doctor.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors, patients []uuid.UUID, loc *time.Location) (int, error) {
	statuses := []scheduling.AppointmentStatus{
		scheduling.StatusPending,
		scheduling.StatusConfirmed,
		scheduling.StatusConfirmed,
		scheduling.StatusConfirmed,
		scheduling.StatusCancelled,
	}
	today := time.Now().In(loc)
	firstDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	batch := &pgx.Batch{}
	for _, doctorID := range doctors {
		taken := make(map[time.Time]bool)
		for i := 0; i < appointmentsPerDoc; i++ {
			day := firstDay.AddDate(0, 0, faker.Number(0, seedDays-1))
			slot := day.Add(9*time.Hour + time.Duration(faker.Number(0, 15))*appointmentDuration*time.Minute)
			if taken[slot] {
				continue
			}
			taken[slot] = true

			batch.Queue(`
				INSERT INTO appointments (id, doctor_id, patient_id, scheduled_at, duration_minutes, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), doctorID, patients[faker.Number(0, len(patients)-1)], slot.UTC(), appointmentDuration,
				statuses[faker.Number(0, len(statuses)-1)])
		}
	}

	n := batch.Len()
	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return 0, err
	}
	return n, nil
}

// seedTimeBlocks goes through the scheduling service so seeded blocks obey
// the same conflict rules as API writes. Colliding dates are skipped.
func seedTimeBlocks(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors []uuid.UUID, admin auth.Caller, loc *time.Location, logger zerolog.Logger) error {
	svc := scheduling.NewService(scheduling.NewPgRepository(pool), passLocker{}, scheduling.Options{
		Location: loc,
		Logger:   logger,
	})

	start := scheduling.DateOf(time.Now().In(loc))
	end := start.AddDate(0, 0, seedDays-1)

	created, skipped, conflicts := 0, 0, 0
	for _, doctorID := range doctors {
		res, err := svc.CreateRecurringTimeBlocks(ctx, admin, scheduling.RecurringTimeBlockInput{
			DoctorID:   doctorID,
			DaysOfWeek: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
			RangeStart: start,
			RangeEnd:   end,
			StartTime:  scheduling.NewTimeOfDay(13, 0),
			EndTime:    scheduling.NewTimeOfDay(14, 0),
			Reason:     "lunch",
		})
		if err != nil {
			return err
		}
		created += len(res.Created)
		skipped += len(res.Skipped)

		for i := 0; i < 2; i++ {
			startAt := scheduling.NewTimeOfDay(faker.Number(9, 16), 0)
			_, err := svc.CreateTimeBlock(ctx, admin, scheduling.CreateTimeBlockInput{
				DoctorID:  doctorID,
				Date:      start.AddDate(0, 0, faker.Number(0, seedDays-1)),
				StartTime: startAt,
				EndTime:   startAt + 60,
				Reason:    faker.RandomString([]string{"admin", "training", "personal", "ward round"}),
			})
			switch {
			case scheduling.IsConflict(err):
				conflicts++
			case err != nil:
				return err
			default:
				created++
			}
		}
	}

	logger.Info().
		Int("created", created).
		Int("skipped_recurring", skipped).
		Int("conflicts", conflicts).
		Msg("time blocks seeded")
	return nil
}

func seedReports(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, admin auth.Caller, cfg config.Config, logger zerolog.Logger) error {
	loc, err := report.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return err
	}
	repo := report.NewPgRepository(pool)
	calc := report.NewCalculator(loc, time.Now)
	svc := report.NewService(repo, report.NewExecutor(repo, report.NewPgDataSource(pool), calc, report.ExecutorOptions{Logger: logger}), calc, logger)

	inputs := []report.ScheduleInput{
		{ReportType: "appointment-volume", Name: "Daily appointment volume", CronSchedule: "0 8 * * *", Frequency: "daily", Format: "csv"},
		{ReportType: "doctor-utilization", Name: "Weekly doctor utilization", CronSchedule: "30 9 * * *", Frequency: "weekly", Format: "excel"},
		{ReportType: "time-block-summary", Name: "Fortnightly availability", CronSchedule: "0 7 * * *", Frequency: "bi_weekly", Format: "pdf"},
		{ReportType: "report-delivery", Name: "Monthly delivery audit", CronSchedule: "0 6 * * *", Frequency: "monthly", Format: "csv", Timezone: "UTC"},
	}
	for _, in := range inputs {
		in.Recipients = []string{faker.Email(), faker.Email()}
		r, err := svc.Create(ctx, admin, in)
		if err != nil {
			return err
		}
		logger.Info().Str("name", r.Name).Time("next_run", r.NextRun).Msg("scheduled report seeded")
	}
	return nil
}
