package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/careflowhq/teleconsult-scheduling/internal/db"
)

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	clinicians, err := seedClinicians(context.Background(), pool, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("seed clinicians")
	}
	contacts, err := seedContacts(context.Background(), pool, 2000)
	if err != nil {
		log.Fatal().Err(err).Msg("seed contacts")
	}
	if err := seedSlots(context.Background(), pool, clinicians, 20); err != nil {
		log.Fatal().Err(err).Msg("seed slots")
	}
	if err := seedRequests(context.Background(), pool, contacts, 500); err != nil {
		log.Fatal().Err(err).Msg("seed requests")
	}

	log.Info().Msg("seed complete")
}

func seedClinicians(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding clinicians")

	specialties := []string{
		"General Practice",
		"Dermatology",
		"Cardiology",
		"Endocrinology",
		"Pediatrics",
		"Psychiatry",
		"Gynecology",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO clinicians (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("clinicians seeded")
	return ids, nil
}

func seedContacts(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding contacts")

	const batchSize = 500

	ids := make([]uuid.UUID, 0, count)
	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			// Unique enough for a seed run, and E.164-shaped.
			phone := fmt.Sprintf("+4670%07d", gofakeit.Number(0, 9999999))

			_, err := tx.Exec(ctx, `
				INSERT INTO contacts (id, name, phone, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (phone) DO NOTHING
			`, id, name, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("contacts progress")
	}

	log.Info().Msg("contacts seeded")
	return ids, nil
}

// seedSlots publishes perClinician half-hour slots per clinician over the next
// two weeks, office hours only.
func seedSlots(ctx context.Context, pool *pgxpool.Pool, clinicians []uuid.UUID, perClinician int) error {
	log.Info().Int("clinicians", len(clinicians)).Int("per_clinician", perClinician).Msg("seeding slots")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	base := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)

	for _, clinicianID := range clinicians {
		for i := 0; i < perClinician; i++ {
			day := gofakeit.Number(0, 13)
			halfHour := gofakeit.Number(16, 33) // 08:00-17:00 in half-hour steps
			start := base.AddDate(0, 0, day).Add(time.Duration(halfHour) * 30 * time.Minute)
			end := start.Add(30 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO slots (id, clinician_id, start_at, end_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), clinicianID, start, end)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("slots seeded")
	return nil
}

func seedRequests(ctx context.Context, pool *pgxpool.Pool, contacts []uuid.UUID, count int) error {
	log.Info().Int("count", count).Msg("seeding requests")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		contactID := contacts[gofakeit.Number(0, len(contacts)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_requests (id, contact_id, message, status, created_at)
			VALUES ($1, $2, $3, 'pending', now())
		`, uuid.New(), contactID, gofakeit.Sentence(12))
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("requests seeded")
	return nil
}
