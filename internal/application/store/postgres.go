package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"lms/internal/application/models"
	id "lms/pkg/domain"
	"lms/pkg/platform/sentinel"
)

// Schema creates the table used by Postgres. Status and applicant are copied out
// of the document so officers can query by them.
const Schema = `
CREATE TABLE IF NOT EXISTS loan_applications (
	id           UUID PRIMARY KEY,
	applicant_id UUID NOT NULL,
	status       TEXT NOT NULL,
	document     JSONB NOT NULL,
	version      BIGINT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS loan_applications_applicant_idx ON loan_applications (applicant_id);
`

const uniqueViolation = "23505"

// Postgres persists aggregates as JSONB rows. Update takes a row lock with
// SELECT ... FOR UPDATE so concurrent writers queue on the database.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies Schema. It is safe to call on every start.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate loan_applications: %w", err)
	}
	return nil
}

func (s *Postgres) Create(ctx context.Context, app *models.LoanApplication) error {
	stored := app.Clone()
	stored.Version = 1
	doc, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loan_applications (id, applicant_id, status, document, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stored.ID.String(), stored.ApplicantID.String(), string(stored.Status), doc, stored.Version,
		stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyExists
		}
		return fmt.Errorf("insert application: %w", err)
	}
	app.Version = 1
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	return scanApplication(ctx, s.db, `SELECT document, version FROM loan_applications WHERE id = $1`, appID)
}

func scanApplication(ctx context.Context, q rowQuerier, query string, appID id.ApplicationID) (*models.LoanApplication, error) {
	var (
		doc     []byte
		version int64
	)
	err := q.QueryRowContext(ctx, query, appID.String()).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}
	var app models.LoanApplication
	if err := json.Unmarshal(doc, &app); err != nil {
		return nil, fmt.Errorf("decode application: %w", err)
	}
	app.Version = version
	return &app, nil
}

func (s *Postgres) Update(ctx context.Context, appID id.ApplicationID, fn Mutator) (result *models.LoanApplication, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	working, err := scanApplication(ctx, tx,
		`SELECT document, version FROM loan_applications WHERE id = $1 FOR UPDATE`, appID)
	if err != nil {
		return nil, err
	}
	if err = fn(working); err != nil {
		return nil, err
	}
	working.Version++
	doc, err := json.Marshal(working)
	if err != nil {
		return nil, fmt.Errorf("encode application: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE loan_applications
		SET status = $2, document = $3, version = $4, updated_at = $5
		WHERE id = $1`,
		appID.String(), string(working.Status), doc, working.Version, working.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return working, nil
}
