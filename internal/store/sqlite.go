package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-classifier/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	status             TEXT NOT NULL DEFAULT 'PARSING',
	language           TEXT NOT NULL DEFAULT 'fr',
	total_rows         INTEGER NOT NULL DEFAULT 0,
	processed_rows     INTEGER NOT NULL DEFAULT 0,
	ai_rows_classified INTEGER NOT NULL DEFAULT 0,
	ai_usage_percent   REAL NOT NULL DEFAULT 0,
	avg_confidence     REAL NOT NULL DEFAULT 0,
	needs_review_count INTEGER NOT NULL DEFAULT 0,
	search_calls_count INTEGER NOT NULL DEFAULT 0,
	ai_tokens_used     INTEGER NOT NULL DEFAULT 0,
	current_step       TEXT NOT NULL DEFAULT '',
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL,
	CHECK (processed_rows <= total_rows)
);

CREATE TABLE IF NOT EXISTS job_rows (
	id                    TEXT PRIMARY KEY,
	job_id                TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	ordinal               INTEGER NOT NULL,
	contact               TEXT NOT NULL,
	final_category        TEXT,
	confidence            INTEGER,
	reason                TEXT NOT NULL DEFAULT '',
	public_signals        TEXT NOT NULL DEFAULT '',
	classification_method TEXT,
	ai_used               INTEGER NOT NULL DEFAULT 0,
	model_used            TEXT NOT NULL DEFAULT '',
	needs_review          INTEGER NOT NULL DEFAULT 0,
	rules_applied         INTEGER NOT NULL DEFAULT 0,
	enrichment_status     TEXT,
	enrichment_attempts   INTEGER NOT NULL DEFAULT 0,
	enrichment_depth      INTEGER NOT NULL DEFAULT 0,
	enrichment_json       TEXT,
	ai_attempts           INTEGER NOT NULL DEFAULT 0,
	row_status            TEXT NOT NULL DEFAULT 'PENDING',
	claimed_at            INTEGER,
	manual_override       INTEGER NOT NULL DEFAULT 0,
	edited_by             TEXT NOT NULL DEFAULT '',
	edited_at             INTEGER,
	previous_value        TEXT NOT NULL DEFAULT '',
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL,
	UNIQUE (job_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_job_rows_job_status ON job_rows(job_id, row_status);

CREATE TABLE IF NOT EXISTS activity_log (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	message    TEXT NOT NULL,
	severity   TEXT NOT NULL,
	metadata   TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_log_job ON activity_log(job_id, created_at);

CREATE TABLE IF NOT EXISTS classification_cache (
	namespace  TEXT NOT NULL,
	cache_key  TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_classification_cache_expires_at ON classification_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// --- Jobs ---

func (s *SQLiteStore) CreateJob(ctx context.Context, language string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.JobStatusParsing), language, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &model.Job{
		ID:        id,
		Status:    model.JobStatusParsing,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, status model.JobStatus, limit int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, defaultLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) TransitionJob(ctx context.Context, jobID string, from, to model.JobStatus) (bool, error) {
	if err := validateTransition(from, to); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), nowMillis(), jobID, string(from),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: transition job %s", jobID)
	}
	n, err := res.RowsAffected()
	return n == 1, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.JobStatusFailed), message, nowMillis(), jobID,
		string(model.JobStatusCompleted), string(model.JobStatusFailed),
	)
	return eris.Wrapf(err, "sqlite: fail job %s", jobID)
}

func (s *SQLiteStore) SetJobStep(ctx context.Context, jobID, step string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET current_step = ?, updated_at = ? WHERE id = ?`,
		step, nowMillis(), jobID,
	)
	return eris.Wrapf(err, "sqlite: set job step %s", jobID)
}

func (s *SQLiteStore) IncrementJobCounters(ctx context.Context, jobID string, delta model.CounterDelta) (*model.Job, error) {
	if err := validateDelta(delta); err != nil {
		return nil, err
	}
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx,
		`UPDATE jobs SET
			search_calls_count = search_calls_count + ?,
			ai_tokens_used = ai_tokens_used + ?,
			ai_rows_classified = ai_rows_classified + ?,
			updated_at = ?
		 WHERE id = ?
		 RETURNING `+jobColumns,
		delta.SearchCalls, delta.AITokens, delta.AIRows, nowMillis(), jobID,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: increment counters %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) RefreshJobAggregates(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := scanSQLiteJob(s.db.QueryRowContext(ctx,
		`UPDATE jobs SET
			processed_rows = MIN(total_rows, (SELECT count(*) FROM job_rows
				WHERE job_id = ?1 AND row_status IN ('COMPLETED', 'FAILED'))),
			avg_confidence = COALESCE((SELECT avg(confidence) FROM job_rows
				WHERE job_id = ?1 AND confidence IS NOT NULL), 0),
			needs_review_count = (SELECT count(*) FROM job_rows
				WHERE job_id = ?1 AND needs_review = 1),
			ai_usage_percent = CASE WHEN total_rows > 0
				THEN ai_rows_classified * 100.0 / total_rows ELSE 0 END,
			updated_at = ?2
		 WHERE id = ?1
		 RETURNING `+jobColumns,
		jobID, nowMillis(),
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: refresh aggregates %s", jobID)
	}
	return job, nil
}

// --- Rows ---

func (s *SQLiteStore) AddRows(ctx context.Context, jobID string, contacts []model.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var offset int
	if err := tx.QueryRowContext(ctx, `SELECT total_rows FROM jobs WHERE id = ?`, jobID).Scan(&offset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
		}
		return 0, eris.Wrapf(err, "sqlite: read job %s", jobID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO job_rows (id, job_id, ordinal, contact, row_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert row")
	}
	defer stmt.Close()

	now := nowMillis()
	for i, c := range contacts {
		contactJSON, err := json.Marshal(c)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal contact")
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), jobID, offset+i,
			string(contactJSON), string(model.RowStatusPending), now, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert row %d", offset+i)
		}
	}

	total := offset + len(contacts)
	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET total_rows = ?, updated_at = ? WHERE id = ?`, total, now, jobID,
	); err != nil {
		return 0, eris.Wrap(err, "sqlite: update total rows")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rows")
	}
	return total, nil
}

// ClaimRows uses a single UPDATE ... RETURNING. SQLite serializes writers, so
// the subquery cannot hand the same row to two callers.
func (s *SQLiteStore) ClaimRows(ctx context.Context, jobID string, filter RowFilter, enrichment model.EnrichmentStatus) ([]model.Row, error) {
	now := nowMillis()
	set := []string{"row_status = ?", "claimed_at = ?", "updated_at = ?"}
	args := []any{string(model.RowStatusProcessing), now, now}
	if enrichment != "" {
		set = append(set, "enrichment_status = ?")
		args = append(args, string(enrichment))
	}

	w := newWhere(sqliteDialect, args...)
	w.rowPredicate(jobID, filter)
	w.args = append(w.args, defaultLimit(filter.Limit))

	query := `UPDATE job_rows SET ` + strings.Join(set, ", ") + `
		WHERE id IN (
			SELECT id FROM job_rows WHERE ` + w.String() + `
			ORDER BY ordinal LIMIT ?
		)
		RETURNING ` + rowColumns

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim rows %s", jobID)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: claim rows iterate")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func (s *SQLiteStore) ReleaseRows(ctx context.Context, rowIDs []string) error {
	if len(rowIDs) == 0 {
		return nil
	}
	args := []any{string(model.RowStatusPending), string(model.EnrichmentSearching), nowMillis()}
	ph := make([]string, len(rowIDs))
	for i, id := range rowIDs {
		ph[i] = "?"
		args = append(args, id)
	}
	args = append(args, string(model.RowStatusProcessing))

	_, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET
			row_status = ?,
			claimed_at = NULL,
			enrichment_status = CASE WHEN enrichment_status = ? THEN NULL ELSE enrichment_status END,
			updated_at = ?
		 WHERE id IN (`+strings.Join(ph, ", ")+`) AND row_status = ?`,
		args...,
	)
	return eris.Wrap(err, "sqlite: release rows")
}

func (s *SQLiteStore) UpdateRow(ctx context.Context, r *model.Row) error {
	var claimed any
	if r.ClaimedAt != nil {
		claimed = r.ClaimedAt.UnixMilli()
	}
	var enrichment any
	if len(r.EnrichmentJSON) > 0 {
		enrichment = string(r.EnrichmentJSON)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET
			final_category = ?, confidence = ?, reason = ?, public_signals = ?,
			classification_method = ?, ai_used = ?, model_used = ?, needs_review = ?,
			rules_applied = ?, enrichment_status = ?, enrichment_attempts = ?,
			enrichment_depth = ?, enrichment_json = ?, ai_attempts = ?,
			row_status = ?, claimed_at = ?, updated_at = ?
		 WHERE id = ? AND manual_override = 0`,
		nullString(string(r.Category)), r.Confidence, r.Reason, r.PublicSignals,
		nullString(string(r.Method)), r.AIUsed, r.ModelUsed, r.NeedsReview,
		r.RulesApplied, nullString(string(r.EnrichmentStatus)), r.EnrichmentAttempts,
		r.EnrichmentDepth, enrichment, r.AIAttempts,
		string(r.Status), claimed, nowMillis(), r.ID,
	)
	return eris.Wrapf(err, "sqlite: update row %s", r.ID)
}

func (s *SQLiteStore) FlagNeedsReview(ctx context.Context, jobID string, filter RowFilter) (int, error) {
	w := newWhere(sqliteDialect, nowMillis())
	w.rowPredicate(jobID, filter)
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET needs_review = 1, updated_at = ? WHERE `+w.String(),
		w.args...,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: flag needs review %s", jobID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountRows(ctx context.Context, jobID string, filter RowFilter) (int, error) {
	w := newWhere(sqliteDialect)
	w.rowPredicate(jobID, filter)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM job_rows WHERE `+w.String(), w.args...).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count rows %s", jobID)
}

func (s *SQLiteStore) ListRows(ctx context.Context, jobID string, limit, offset int) ([]model.Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+rowColumns+` FROM job_rows WHERE job_id = ? ORDER BY ordinal LIMIT ? OFFSET ?`,
		jobID, defaultLimit(limit), offset,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list rows %s", jobID)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanSQLiteRow(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rows iterate")
}

func (s *SQLiteStore) OverrideRow(ctx context.Context, rowID string, o Override) error {
	now := nowMillis()
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_rows SET
			previous_value = COALESCE(final_category, ''),
			final_category = ?, confidence = ?, needs_review = 0,
			manual_override = 1, edited_by = ?, edited_at = ?,
			row_status = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ?`,
		string(o.Category), o.Confidence, o.EditedBy, now,
		string(model.RowStatusCompleted), now, rowID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: override row %s", rowID)
	}
	return checkRowsAffected(res, "row", rowID)
}

// --- Activity ---

func (s *SQLiteStore) AppendActivity(ctx context.Context, e model.ActivityEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var meta any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal activity metadata")
		}
		meta = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_log (id, job_id, message, severity, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, e.Message, string(e.Severity), meta, e.CreatedAt.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: insert activity")
}

func (s *SQLiteStore) ListActivity(ctx context.Context, jobID string, limit int) ([]model.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, message, severity, metadata, created_at FROM activity_log
		 WHERE job_id = ? ORDER BY created_at, rowid LIMIT ?`,
		jobID, defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list activity %s", jobID)
	}
	defer rows.Close()

	var out []model.ActivityEntry
	for rows.Next() {
		var e model.ActivityEntry
		var meta sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.JobID, &e.Message, &e.Severity, &meta, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal activity metadata")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list activity iterate")
}

// --- Cache ---

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, namespace, key string) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var created, expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT namespace, cache_key, payload, created_at, expires_at FROM classification_cache
		 WHERE namespace = ? AND cache_key = ? AND expires_at > ?`,
		namespace, key, nowMillis(),
	).Scan(&e.Namespace, &e.Key, &e.Payload, &created, &expires)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.ExpiresAt = time.UnixMilli(expires).UTC()
	return &e, nil
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, e model.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO classification_cache (namespace, cache_key, payload, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (namespace, cache_key) DO UPDATE SET
			payload = excluded.payload, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		e.Namespace, e.Key, e.Payload, e.CreatedAt.UnixMilli(), e.ExpiresAt.UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

func (s *SQLiteStore) PurgeExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM classification_cache WHERE expires_at <= ?`, nowMillis(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteJob(row scannable) (*model.Job, error) {
	var j model.Job
	var created, updated int64
	err := row.Scan(&j.ID, &j.Status, &j.Language, &j.TotalRows, &j.ProcessedRows,
		&j.AIRowsClassified, &j.AIUsagePercent, &j.AvgConfidence, &j.NeedsReviewCount,
		&j.SearchCallsCount, &j.AITokensUsed, &j.CurrentStep, &j.ErrorMessage,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.CreatedAt = time.UnixMilli(created).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	return &j, nil
}

func scanSQLiteRow(row scannable) (*model.Row, error) {
	var (
		r                                      model.Row
		contactJSON                            string
		category, method, enrichStatus, enrich sql.NullString
		confidence, claimed, edited            sql.NullInt64
		created, updated                       int64
	)
	err := row.Scan(&r.ID, &r.JobID, &r.Ordinal, &contactJSON, &category, &confidence,
		&r.Reason, &r.PublicSignals, &method, &r.AIUsed, &r.ModelUsed, &r.NeedsReview,
		&r.RulesApplied, &enrichStatus, &r.EnrichmentAttempts, &r.EnrichmentDepth,
		&enrich, &r.AIAttempts, &r.Status, &claimed, &r.ManualOverride,
		&r.EditedBy, &edited, &r.PreviousValue, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contactJSON), &r.Contact); err != nil {
		return nil, eris.Wrap(err, "unmarshal contact")
	}
	r.Category = model.Category(category.String)
	r.Method = model.Method(method.String)
	r.EnrichmentStatus = model.EnrichmentStatus(enrichStatus.String)
	if confidence.Valid {
		c := int(confidence.Int64)
		r.Confidence = &c
	}
	if enrich.Valid {
		r.EnrichmentJSON = json.RawMessage(enrich.String)
	}
	if claimed.Valid {
		t := time.UnixMilli(claimed.Int64).UTC()
		r.ClaimedAt = &t
	}
	if edited.Valid {
		t := time.UnixMilli(edited.Int64).UTC()
		r.EditedAt = &t
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return &r, nil
}
