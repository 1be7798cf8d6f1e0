package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FACorreiaa/smart-finance-importer/internal/domain/import/model"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier is satisfied by both DB and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresImportRepository implements Store using PostgreSQL
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

var _ Store = (*PostgresImportRepository)(nil)

func (r *PostgresImportRepository) AccountByID(ctx context.Context, owner uuid.UUID, id int64) (*model.Account, error) {
	query := `SELECT id, user_id, name FROM accounts WHERE id = $1 AND user_id = $2`

	a := &model.Account{}
	err := r.db.QueryRow(ctx, query, id, owner).Scan(&a.ID, &a.UserID, &a.Name)
	if err != nil {
		return nil, notFound(err, "failed to get account")
	}
	return a, nil
}

func (r *PostgresImportRepository) AccountByName(ctx context.Context, owner uuid.UUID, name string) (*model.Account, error) {
	query := `
		SELECT id, user_id, name FROM accounts
		WHERE user_id = $1 AND lower(name) = lower($2)
		ORDER BY id LIMIT 1`

	a := &model.Account{}
	err := r.db.QueryRow(ctx, query, owner, name).Scan(&a.ID, &a.UserID, &a.Name)
	if err != nil {
		return nil, notFound(err, "failed to get account")
	}
	return a, nil
}

func (r *PostgresImportRepository) CreditCardByID(ctx context.Context, owner uuid.UUID, id int64) (*model.CreditCard, error) {
	query := `SELECT id, user_id, name FROM credit_cards WHERE id = $1 AND user_id = $2`

	c := &model.CreditCard{}
	err := r.db.QueryRow(ctx, query, id, owner).Scan(&c.ID, &c.UserID, &c.Name)
	if err != nil {
		return nil, notFound(err, "failed to get credit card")
	}
	return c, nil
}

func (r *PostgresImportRepository) CreditCardByName(ctx context.Context, owner uuid.UUID, name string) (*model.CreditCard, error) {
	query := `
		SELECT id, user_id, name FROM credit_cards
		WHERE user_id = $1 AND lower(name) = lower($2)
		ORDER BY id LIMIT 1`

	c := &model.CreditCard{}
	err := r.db.QueryRow(ctx, query, owner, name).Scan(&c.ID, &c.UserID, &c.Name)
	if err != nil {
		return nil, notFound(err, "failed to get credit card")
	}
	return c, nil
}

// GetOrCreateCategory looks the category up first and only writes when it is
// missing. The insert is an upsert so a concurrent creator's row is returned
// instead of a unique violation.
func (r *PostgresImportRepository) GetOrCreateCategory(ctx context.Context, owner uuid.UUID, name string, categoryType model.CategoryType) (*model.Category, error) {
	selectQuery := `
		SELECT id, user_id, name, type FROM categories
		WHERE user_id = $1 AND lower(name) = lower($2) AND type = $3`

	c := &model.Category{}
	err := r.db.QueryRow(ctx, selectQuery, owner, name, categoryType).Scan(&c.ID, &c.UserID, &c.Name, &c.Type)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	insertQuery := `
		INSERT INTO categories (user_id, name, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, lower(name), type) DO UPDATE SET name = categories.name
		RETURNING id, user_id, name, type`

	err = r.db.QueryRow(ctx, insertQuery, owner, name, categoryType).Scan(&c.ID, &c.UserID, &c.Name, &c.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return c, nil
}

func (r *PostgresImportRepository) GetOrCreateSubcategory(ctx context.Context, owner uuid.UUID, categoryID int64, name string) (*model.Subcategory, error) {
	selectQuery := `
		SELECT id, user_id, category_id, name FROM subcategories
		WHERE user_id = $1 AND category_id = $2 AND lower(name) = lower($3)`

	s := &model.Subcategory{}
	err := r.db.QueryRow(ctx, selectQuery, owner, categoryID, name).Scan(&s.ID, &s.UserID, &s.CategoryID, &s.Name)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get subcategory: %w", err)
	}

	insertQuery := `
		INSERT INTO subcategories (user_id, category_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, category_id, lower(name)) DO UPDATE SET name = subcategories.name
		RETURNING id, user_id, category_id, name`

	err = r.db.QueryRow(ctx, insertQuery, owner, categoryID, name).Scan(&s.ID, &s.UserID, &s.CategoryID, &s.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create subcategory: %w", err)
	}
	return s, nil
}

func (r *PostgresImportRepository) GetOrCreateTag(ctx context.Context, owner uuid.UUID, name string) (*model.Tag, error) {
	selectQuery := `SELECT id, user_id, name FROM tags WHERE user_id = $1 AND lower(name) = lower($2)`

	t := &model.Tag{}
	err := r.db.QueryRow(ctx, selectQuery, owner, name).Scan(&t.ID, &t.UserID, &t.Name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	insertQuery := `
		INSERT INTO tags (user_id, name)
		VALUES ($1, $2)
		ON CONFLICT (user_id, lower(name)) DO UPDATE SET name = tags.name
		RETURNING id, user_id, name`

	err = r.db.QueryRow(ctx, insertQuery, owner, name).Scan(&t.ID, &t.UserID, &t.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	return t, nil
}

// WithinTx runs fn in a database transaction, rolling back when fn fails.
func (r *PostgresImportRepository) WithinTx(ctx context.Context, fn func(w TxWriter) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	if err := fn(&pgTxWriter{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTxWriter struct {
	q querier
}

func (w *pgTxWriter) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	query := `
		INSERT INTO transactions (
			user_id, account_id, credit_card_id, transaction_type, amount, description, occurred_at,
			category_id, subcategory_id, installments_total, installment_number, installment_group_id,
			origin, hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	err := w.q.QueryRow(ctx, query,
		t.UserID,
		t.AccountID,
		t.CreditCardID,
		t.Type,
		t.Amount,
		t.Description,
		t.OccurredAt,
		t.CategoryID,
		t.SubcategoryID,
		t.InstallmentsTotal,
		t.InstallmentNumber,
		t.InstallmentGroupID,
		t.Origin,
		t.Hash,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (w *pgTxWriter) SetTransactionTags(ctx context.Context, transactionID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	query := `
		INSERT INTO transaction_tags (transaction_id, tag_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`

	if _, err := w.q.Exec(ctx, query, transactionID, tagIDs); err != nil {
		return fmt.Errorf("failed to tag transaction: %w", err)
	}
	return nil
}

const jobColumns = `id, user_id, account_id, credit_card_id, status, file_name, file_path, handler_type,
	failed_reason, success_count, error_count, errors, created_at, updated_at, processed_at`

func scanJob(row pgx.Row) (*model.ImportJob, error) {
	job := &model.ImportJob{}
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.AccountID,
		&job.CreditCardID,
		&job.Status,
		&job.FileName,
		&job.FilePath,
		&job.HandlerType,
		&job.FailedReason,
		&job.SuccessCount,
		&job.ErrorCount,
		&job.Errors,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.ProcessedAt,
	)
	return job, err
}

// CreateJob inserts a new import job
func (r *PostgresImportRepository) CreateJob(ctx context.Context, job *model.ImportJob) error {
	query := `
		INSERT INTO import_jobs (user_id, account_id, credit_card_id, status, file_name, file_path)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	if job.Status == "" {
		job.Status = model.JobStatusSent
	}

	err := r.db.QueryRow(ctx, query,
		job.UserID,
		job.AccountID,
		job.CreditCardID,
		job.Status,
		job.FileName,
		job.FilePath,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// GetJob retrieves an import job by ID
func (r *PostgresImportRepository) GetJob(ctx context.Context, id int64) (*model.ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "failed to get import job")
	}
	return job, nil
}

// UpdateJob writes the mutable fields of a job
func (r *PostgresImportRepository) UpdateJob(ctx context.Context, job *model.ImportJob) error {
	query := `
		UPDATE import_jobs
		SET status = $2, handler_type = $3, failed_reason = $4, success_count = $5,
			error_count = $6, errors = $7, processed_at = $8, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}

	err := r.db.QueryRow(ctx, query,
		job.ID,
		job.Status,
		job.HandlerType,
		job.FailedReason,
		job.SuccessCount,
		job.ErrorCount,
		errs,
		job.ProcessedAt,
	).Scan(&job.UpdatedAt)
	if err != nil {
		return notFound(err, "failed to update import job")
	}
	return nil
}

func (r *PostgresImportRepository) ListJobsByStatus(ctx context.Context, status model.JobStatus, updatedBefore time.Time, limit int) ([]*model.ImportJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM import_jobs
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, status, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	return jobs, nil
}

func (r *PostgresImportRepository) CountJobsByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM import_jobs WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count import jobs: %w", err)
	}
	return count, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
