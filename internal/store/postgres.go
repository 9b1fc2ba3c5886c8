package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-classifier/internal/db"
	"github.com/sells-group/contact-classifier/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const jobColumns = `id, status, language, total_rows, processed_rows, ai_rows_classified,
	ai_usage_percent, avg_confidence, needs_review_count, search_calls_count, ai_tokens_used,
	current_step, error_message, created_at, updated_at`

const rowColumns = `id, job_id, ordinal, contact, final_category, confidence, reason, public_signals,
	classification_method, ai_used, model_used, needs_review, rules_applied, enrichment_status,
	enrichment_attempts, enrichment_depth, enrichment_json, ai_attempts, row_status, claimed_at,
	manual_override, edited_by, edited_at, previous_value, created_at, updated_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_job":         `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`,
	"get_cache_entry": `SELECT namespace, cache_key, payload, created_at, expires_at FROM classification_cache WHERE namespace = $1 AND cache_key = $2 AND expires_at > now()`,
	"put_cache_entry": `INSERT INTO classification_cache (namespace, cache_key, payload, created_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (namespace, cache_key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
	"insert_activity": `INSERT INTO activity_log (id, job_id, message, severity, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL DEFAULT 'PARSING',
	language           TEXT NOT NULL DEFAULT 'fr',
	total_rows         INTEGER NOT NULL DEFAULT 0,
	processed_rows     INTEGER NOT NULL DEFAULT 0,
	ai_rows_classified INTEGER NOT NULL DEFAULT 0,
	ai_usage_percent   DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_confidence     DOUBLE PRECISION NOT NULL DEFAULT 0,
	needs_review_count INTEGER NOT NULL DEFAULT 0,
	search_calls_count INTEGER NOT NULL DEFAULT 0,
	ai_tokens_used     BIGINT NOT NULL DEFAULT 0,
	current_step       TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (processed_rows <= total_rows)
);

CREATE TABLE IF NOT EXISTS job_rows (
	id                    TEXT PRIMARY KEY,
	job_id                TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	ordinal               INTEGER NOT NULL,
	contact               JSONB NOT NULL,
	final_category        TEXT,
	confidence            INTEGER,
	reason                TEXT NOT NULL DEFAULT '',
	public_signals        TEXT NOT NULL DEFAULT '',
	classification_method TEXT,
	ai_used               BOOLEAN NOT NULL DEFAULT false,
	model_used            TEXT NOT NULL DEFAULT '',
	needs_review          BOOLEAN NOT NULL DEFAULT false,
	rules_applied         BOOLEAN NOT NULL DEFAULT false,
	enrichment_status     TEXT,
	enrichment_attempts   INTEGER NOT NULL DEFAULT 0,
	enrichment_depth      INTEGER NOT NULL DEFAULT 0,
	enrichment_json       JSONB,
	ai_attempts           INTEGER NOT NULL DEFAULT 0,
	row_status            TEXT NOT NULL DEFAULT 'PENDING',
	claimed_at            TIMESTAMPTZ,
	manual_override       BOOLEAN NOT NULL DEFAULT false,
	edited_by             TEXT NOT NULL DEFAULT '',
	edited_at             TIMESTAMPTZ,
	previous_value        TEXT NOT NULL DEFAULT '',
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (job_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_job_rows_job_status ON job_rows(job_id, row_status);

CREATE TABLE IF NOT EXISTS activity_log (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	message    TEXT NOT NULL,
	severity   TEXT NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_activity_log_job ON activity_log(job_id, created_at);

CREATE TABLE IF NOT EXISTS classification_cache (
	namespace  TEXT NOT NULL,
	cache_key  TEXT NOT NULL,
	payload    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (namespace, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_classification_cache_expires_at ON classification_cache(expires_at);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, language string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, language, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.JobStatusParsing), language, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &model.Job{
		ID:        id,
		Status:    model.JobStatusParsing,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, defaultLimit(limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) TransitionJob(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error) {
	if err := validateTransition(from, to); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), jobID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: transition job %s", jobID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
		string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	return eris.Wrapf(err, "postgres: fail job %s", jobID)
}

func (s *PostgresStore) SetJobStep(ctx context.Context, jobID, step string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET current_step = $1, updated_at = $2 WHERE id = $3`,
		step, time.Now().UTC(), jobID,
	)
	return eris.Wrapf(err, "postgres: set job step %s", jobID)
}

func (s *PostgresStore) IncrementJobCounters(ctx context.Context, jobID string, delta model.CounterDelta) (*model.Job, error) {
	if err := validateDelta(delta); err != nil {
		return nil, err
	}
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
			search_calls_count = search_calls_count + $1,
			ai_tokens_used = ai_tokens_used + $2,
			ai_rows_classified = ai_rows_classified + $3,
			updated_at = $4
		 WHERE id = $5
		 RETURNING `+jobColumns,
		delta.SearchCalls, delta.AITokens, delta.AIRows, time.Now().UTC(), jobID,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: increment counters %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) RefreshJobAggregates(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
			processed_rows = LEAST(total_rows, (SELECT count(*) FROM job_rows
				WHERE job_id = $1 AND row_status IN ('COMPLETED', 'FAILED'))),
			avg_confidence = COALESCE((SELECT avg(confidence) FROM job_rows
				WHERE job_id = $1 AND confidence IS NOT NULL), 0),
			needs_review_count = (SELECT count(*) FROM job_rows
				WHERE job_id = $1 AND needs_review),
			ai_usage_percent = CASE WHEN total_rows > 0
				THEN ai_rows_classified * 100.0 / total_rows ELSE 0 END,
			updated_at = $2
		 WHERE id = $1
		 RETURNING `+jobColumns,
		jobID, time.Now().UTC(),
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: refresh aggregates %s", jobID)
	}
	return job, nil
}

// --- Rows ---

func (s *PostgresStore) AddRows(ctx context.Context, jobID string, contacts []model.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	var total int

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var offset int
		if err := tx.QueryRow(ctx,
			`SELECT total_rows FROM jobs WHERE id = $1 FOR UPDATE`, jobID,
		).Scan(&offset); err != nil {
			return eris.Wrapf(notFound(err), "postgres: lock job %s", jobID)
		}

		rows := make([][]any, 0, len(contacts))
		for i, c := range contacts {
			contactJSON, err := json.Marshal(c)
			if err != nil {
				return eris.Wrap(err, "postgres: marshal contact")
			}
			rows = append(rows, []any{
				uuid.New().String(), jobID, offset + i, contactJSON,
				string(model.RowStatusPending), now, now,
			})
		}
		if _, err := db.CopyFrom(ctx, tx, "job_rows",
			[]string{"id", "job_id", "ordinal", "contact", "row_status", "created_at", "updated_at"},
			rows,
		); err != nil {
			return err
		}

		total = offset + len(contacts)
		_, err := tx.Exec(ctx,
			`UPDATE jobs SET total_rows = $1, updated_at = $2 WHERE id = $3`,
			total, now, jobID,
		)
		return eris.Wrap(err, "postgres: update total rows")
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *PostgresStore) ClaimRows(ctx context.Context, jobID string, filter RowFilter, enrichment model.EnrichmentStatus) ([]model.Row, error) {
	now := time.Now().UTC()
	w := newWhere(postgresDialect, string(model.RowStatusProcessing), now)
	w.rowPredicate(jobID, filter)

	set := `row_status = $1, claimed_at = $2, updated_at = $2`
	if enrichment != "" {
		set += `, enrichment_status = ` + w.arg(string(enrichment))
	}
	limit := w.arg(defaultLimit(filter.Limit))

	query := `UPDATE job_rows SET ` + set + `
		WHERE id IN (
			SELECT id FROM job_rows WHERE ` + w.String() + `
			ORDER BY ordinal LIMIT ` + limit + `
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + rowColumns

	rows, err := s.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: claim rows %s", jobID)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: claim rows iterate")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *PostgresStore) ReleaseRows(ctx context.Context, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE job_rows SET
			row_status = $1,
			claimed_at = NULL,
			enrichment_status = CASE WHEN enrichment_status = $2 THEN NULL ELSE enrichment_status END,
			updated_at = $3
		 WHERE id = ANY($4) AND row_status = $5`,
		string(model.RowStatusPending), string(model.EnrichmentSearching), time.Now().UTC(),
		rowIDs, string(model.RowStatusProcessing),
	)
	return eris.Wrap(err, "postgres: release rows")
}

func (s *PostgresStore) UpdateRow(ctx context.Context, r *model.Row) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE job_rows SET
			final_category = $1, confidence = $2, reason = $3, public_signals = $4,
			classification_method = $5, ai_used = $6, model_used = $7, needs_review = $8,
			rules_applied = $9, enrichment_status = $10, enrichment_attempts = $11,
			enrichment_depth = $12, enrichment_json = $13, ai_attempts = $14,
			row_status = $15, claimed_at = $16, updated_at = $17
		 WHERE id = $18 AND manual_override = false`,
		nullString(string(r.Category)), r.Confidence, r.Reason, r.PublicSignals,
		nullString(string(r.Method)), r.AIUsed, r.ModelUsed, r.NeedsReview,
		r.RulesApplied, nullString(string(r.EnrichmentStatus)), r.EnrichmentAttempts,
		r.EnrichmentDepth, nullJSON(r.EnrichmentJSON), r.AIAttempts,
		string(r.Status), r.ClaimedAt, time.Now().UTC(), r.ID,
	)
	return eris.Wrapf(err, "postgres: update row %s", r.ID)
}

func (s *PostgresStore) FlagNeedsReview(ctx context.Context, jobID string, filter RowFilter) (int, error) {
	w := newWhere(postgresDialect, time.Now().UTC())
	w.rowPredicate(jobID, filter)
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_rows SET needs_review = true, updated_at = $1 WHERE `+w.String(),
		w.args...,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: flag needs review %s", jobID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountRows(ctx context.Context, jobID string, filter RowFilter) (int, error) {
	w := newWhere(postgresDialect)
	w.rowPredicate(jobID, filter)
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM job_rows WHERE `+w.String(), w.args...).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count rows %s", jobID)
}

func (s *PostgresStore) ListRows(ctx context.Context, jobID string, limit, offset int) ([]model.Row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+rowColumns+` FROM job_rows WHERE job_id = $1 ORDER BY ordinal LIMIT $2 OFFSET $3`,
		jobID, defaultLimit(limit), offset,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list rows %s", jobID)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list rows iterate")
}

func (s *PostgresStore) OverrideRow(ctx context.Context, rowID string, o Override) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_rows SET
			previous_value = COALESCE(final_category, ''),
			final_category = $1, confidence = $2, needs_review = false,
			manual_override = true, edited_by = $3, edited_at = $4,
			row_status = $5, claimed_at = NULL, updated_at = $4
		 WHERE id = $6`,
		string(o.Category), o.Confidence, o.EditedBy, now, string(model.RowStatusCompleted), rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: override row %s", rowID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "row %s", rowID)
	}
	return nil
}

// --- Activity ---

func (s *PostgresStore) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return eris.Wrap(err, "postgres: marshal activity metadata")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO activity_log (id, job_id, message, severity, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.JobID, e.Message, string(e.Severity), meta, e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert activity")
}

func (s *PostgresStore) ListActivity(ctx context.Context, jobID string, limit int) ([]model.ActivityEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, message, severity, metadata, created_at FROM activity_log
		 WHERE job_id = $1 ORDER BY created_at, id LIMIT $2`,
		jobID, defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list activity %s", jobID)
	}
	defer rows.Close()

	var out []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Message, &e.Severity, &meta, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal activity metadata")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list activity iterate")
}

// --- Cache ---

func (s *PostgresStore) GetCacheEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	var e model.CacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT namespace, cache_key, payload, created_at, expires_at FROM classification_cache
		 WHERE namespace = $1 AND cache_key = $2 AND expires_at > now()`,
		namespace, key,
	).Scan(&e.Namespace, &e.Key, &e.Payload, &e.CreatedAt, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	return &e, nil
}

func (s *PostgresStore) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO classification_cache (namespace, cache_key, payload, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, cache_key) DO UPDATE SET
			payload = EXCLUDED.payload, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		e.Namespace, e.Key, e.Payload, e.CreatedAt.UTC(), e.ExpiresAt.UTC(),
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

func (s *PostgresStore) PurgeExpiredCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM classification_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge expired cache")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	err := row.Scan(&j.ID, &j.Status, &j.Language, &j.TotalRows, &j.ProcessedRows,
		&j.AIRowsClassified, &j.AIUsagePercent, &j.AvgConfidence, &j.NeedsReviewCount,
		&j.SearchCallsCount, &j.AITokensUsed, &j.CurrentStep, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

func scanRow(row scannable) (*model.Row, error) {
	var (
		r                              model.Row
		contactJSON, enrichmentJSON    []byte
		category, method, enrichStatus *string
	)
	err := row.Scan(&r.ID, &r.JobID, &r.Ordinal, &contactJSON, &category, &r.Confidence,
		&r.Reason, &r.PublicSignals, &method, &r.AIUsed, &r.ModelUsed, &r.NeedsReview,
		&r.RulesApplied, &enrichStatus, &r.EnrichmentAttempts, &r.EnrichmentDepth,
		&enrichmentJSON, &r.AIAttempts, &r.Status, &r.ClaimedAt, &r.ManualOverride,
		&r.EditedBy, &r.EditedAt, &r.PreviousValue, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if err := json.Unmarshal(contactJSON, &r.Contact); err != nil {
		return nil, eris.Wrap(err, "unmarshal contact")
	}
	if category != nil {
		r.Category = model.Category(*category)
	}
	if method != nil {
		r.Method = model.Method(*method)
	}
	if enrichStatus != nil {
		r.EnrichmentStatus = model.EnrichmentStatus(*enrichStatus)
	}
	if len(enrichmentJSON) > 0 {
		r.EnrichmentJSON = json.RawMessage(enrichmentJSON)
	}
	return &r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
