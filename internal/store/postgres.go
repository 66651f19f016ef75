package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/FinHutch/licencecheck/internal/licence"
)

// pgUniqueViolation is the Postgres error code for unique_violation.
const pgUniqueViolation = "23505"

// Postgres is the production licence store backed by a single licences
// table keyed by licence code.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres opens a Postgres-backed store using the given DSN and
// verifies connectivity. Caller must Close when done.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping reports whether the database is reachable. Used by readiness
// probes.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Insert persists a freshly issued licence.
func (p *Postgres) Insert(ctx context.Context, l *licence.Licence) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO licences (licence_code, issued_at, expiry, activated)
		 VALUES ($1, $2, $3, FALSE)`,
		l.Code, l.IssuedAt, l.Expiry)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return licence.ErrDuplicateCode
		}
		return unavailable("insert licence", err)
	}
	return nil
}

// GetByCode returns the licence for code, or ErrNotFound.
func (p *Postgres) GetByCode(ctx context.Context, code string) (*licence.Licence, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT licence_code, hwid, issued_at, expiry, activated, activated_at
		 FROM licences WHERE licence_code = $1`,
		code)
	return scanLicence(row)
}

// GetByHWID returns the licence bound to hwid. The ORDER BY makes the
// multi-match case deterministic: earliest issued first, then code.
func (p *Postgres) GetByHWID(ctx context.Context, hwid string) (*licence.Licence, error) {
	if hwid == "" {
		return nil, licence.ErrNotFound
	}
	row := p.db.QueryRowContext(ctx,
		`SELECT licence_code, hwid, issued_at, expiry, activated, activated_at
		 FROM licences WHERE hwid = $1
		 ORDER BY issued_at, licence_code
		 LIMIT 1`,
		hwid)
	return scanLicence(row)
}

// CompareAndBind performs the binding transition as a single conditional
// UPDATE, so two racing activations can never both observe "unbound".
// When the UPDATE binds no row, the follow-up read classifies the
// outcome; that read is race-free because a bound licence's hwid and
// activated fields are immutable.
func (p *Postgres) CompareAndBind(ctx context.Context, code, hwid string) (licence.BindOutcome, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE licences
		 SET hwid = $2, activated = TRUE, activated_at = now()
		 WHERE licence_code = $1 AND activated = FALSE`,
		code, hwid)
	if err != nil {
		return licence.BindOutcomeNotFound, unavailable("bind licence", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return licence.BindOutcomeNotFound, unavailable("bind licence", err)
	}
	if n == 1 {
		return licence.BindOutcomeBound, nil
	}

	var stored sql.NullString
	err = p.db.QueryRowContext(ctx,
		`SELECT hwid FROM licences WHERE licence_code = $1`, code).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return licence.BindOutcomeNotFound, nil
	}
	if err != nil {
		return licence.BindOutcomeNotFound, unavailable("bind licence", err)
	}
	if stored.Valid && stored.String == hwid {
		return licence.BindOutcomeAlreadyBoundSame, nil
	}
	return licence.BindOutcomeConflict, nil
}

// List returns all licences ordered by issuance time then code.
func (p *Postgres) List(ctx context.Context) ([]licence.Licence, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT licence_code, hwid, issued_at, expiry, activated, activated_at
		 FROM licences
		 ORDER BY issued_at, licence_code`)
	if err != nil {
		return nil, unavailable("list licences", err)
	}
	defer rows.Close()

	var out []licence.Licence
	for rows.Next() {
		l, err := scanLicence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list licences", err)
	}
	return out, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLicence(s scanner) (*licence.Licence, error) {
	var (
		l           licence.Licence
		hwid        sql.NullString
		activatedAt sql.NullTime
	)
	err := s.Scan(&l.Code, &hwid, &l.IssuedAt, &l.Expiry, &l.Activated, &activatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, licence.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("scan licence", err)
	}
	if hwid.Valid {
		l.HWID = hwid.String
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		l.ActivatedAt = &t
	}
	return &l, nil
}

// unavailable wraps storage failures so callers can distinguish
// transient backend trouble (503) from definitive outcomes.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", licence.ErrUnavailable, op, err)
}
