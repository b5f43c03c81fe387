package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-scheduling/internal/db"
	"github.com/hackgods/physio-scheduling/internal/logging"
	"github.com/hackgods/physio-scheduling/internal/settings"
)

const (
	clinicCount          = 3
	practitionersPerSite = 6
	patientCount         = 2000
	courseEvery          = 3
)

func main() {
	log := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"), "seed")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, log); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	clinics, err := seedClinics(ctx, pool, log, clinicCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed clinics")
	}
	if err := seedPractitioners(ctx, pool, log, clinics, practitionersPerSite); err != nil {
		log.Fatal().Err(err).Msg("seed practitioners")
	}
	patients, err := seedPatients(ctx, pool, log, patientCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedCourses(ctx, pool, log, patients); err != nil {
		log.Fatal().Err(err).Msg("seed courses")
	}

	log.Info().Str("home_clinic_id", clinics[0].String()).Msg("seed complete")
}

func seedClinics(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, count)

	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < count; i++ {
			id := uuid.New()
			if _, err := tx.Exec(ctx, `
				INSERT INTO clinics (id, name) VALUES ($1, $2)
			`, id, gofakeit.Company()+" Physio"); err != nil {
				return err
			}

			cs := settings.Clinic{
				Open:            "09:00",
				Close:           "20:00",
				SlotMinutes:     30,
				NotifySMS:       true,
				NotifyEmail:     gofakeit.Bool(),
				NotifyLine:      gofakeit.Bool(),
				CalendarEnabled: i == 0,
			}
			blob, err := json.Marshal(cs)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO clinic_settings (clinic_id, settings) VALUES ($1, $2)
			`, id, blob); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int("count", len(ids)).Msg("clinics seeded")
	return ids, nil
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, clinics []uuid.UUID, perClinic int) error {
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for _, clinic := range clinics {
			for i := 0; i < perClinic; i++ {
				if _, err := tx.Exec(ctx, `
					INSERT INTO practitioners (id, clinic_id, name) VALUES ($1, $2, $3)
				`, uuid.New(), clinic, gofakeit.Name()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("count", len(clinics)*perClinic).Msg("practitioners seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, count int) ([]uuid.UUID, error) {
	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				id := uuid.New()
				var lineID *string
				if gofakeit.Number(0, 3) == 0 {
					l := "U" + gofakeit.LetterN(32)
					lineID = &l
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO patients (id, name, phone, email, line_id)
					VALUES ($1, $2, $3, $4, $5)
				`, id, gofakeit.Name(), gofakeit.Numerify("08########"), gofakeit.Email(), lineID); err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return ids, nil
}

func seedCourses(ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, patients []uuid.UUID) error {
	var n int
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		for i := 0; i < len(patients); i += courseEvery {
			id := uuid.New()
			total := gofakeit.RandomInt([]int{5, 10, 20})
			expires := time.Now().AddDate(0, gofakeit.Number(3, 12), 0)

			if _, err := tx.Exec(ctx, `
				INSERT INTO courses (id, patient_id, name, total_sessions, remaining_sessions, expires_on)
				VALUES ($1, $2, $3, $4, $4, $5)
			`, id, patients[i], gofakeit.RandomString([]string{"Back care", "Knee rehab", "Shoulder mobility", "Post-op"}), total, expires); err != nil {
				return err
			}

			// Family courses are shared with the next patient in the list.
			if i+1 < len(patients) && gofakeit.Number(0, 4) == 0 {
				if _, err := tx.Exec(ctx, `
					INSERT INTO course_shared_patients (course_id, patient_id) VALUES ($1, $2)
				`, id, patients[i+1]); err != nil {
					return err
				}
			}
			n++
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Int("count", n).Msg("courses seeded")
	return nil
}
