package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/joseph-ayodele/searchable-pdf/constants"
	"github.com/joseph-ayodele/searchable-pdf/internal/common"
	"github.com/joseph-ayodele/searchable-pdf/internal/entity"
)

// SQLJobRepository implements JobRepository on any ent SQL driver (Postgres
// via pgx, SQLite via modernc). Transitions are single UPDATE statements
// guarded on the current status and owner; RowsAffected decides the race.
type SQLJobRepository struct {
	drv *entsql.Driver
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

func NewSQLJobRepository(drv *entsql.Driver, log *slog.Logger) *SQLJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &SQLJobRepository{drv: drv, db: drv.DB(), log: log, now: time.Now}
}

func (r *SQLJobRepository) b() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *SQLJobRepository) Insert(ctx context.Context, job *entity.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	query, args := r.b().Insert(jobsTableName).
		Columns(
			"id", "status", "filename", "doc_type", "content_type", "size_bytes", "content_hash",
			"input_key", "dpi", "languages", "gpu", "page_count", "attempts", "submitted_at",
		).
		Values(
			job.ID.String(), string(job.Status), job.Filename, string(job.DocType), job.ContentType,
			job.SizeBytes, job.ContentHash, job.InputKey, job.Options.DPI,
			strings.Join(job.Options.Languages, ","), job.Options.GPU, 0, 0, job.SubmittedAt.UnixMilli(),
		).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.Error("job insert failed", "job_id", job.ID, "error", err)
		return err
	}
	r.log.Info("job inserted", "job_id", job.ID, "doc_type", job.DocType)
	return nil
}

func (r *SQLJobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query, args := r.b().Select(jobColumnNames()...).
		From(r.b().Table(jobsTableName)).
		Where(entsql.EQ("id", id.String())).
		Query()
	jobs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, jobNotFound(id)
	}
	return jobs[0], nil
}

func (r *SQLJobRepository) Claim(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) (*entity.Job, error) {
	now := r.now()
	query, args := r.b().Update(jobsTableName).
		Set("status", string(constants.JobStatusProcessing)).
		Set("claimed_by", workerID).
		Set("lease_expires_at", now.Add(lease).UnixMilli()).
		Set("started_at", now.UnixMilli()).
		Add("attempts", 1).
		Where(entsql.And(
			entsql.EQ("id", id.String()),
			entsql.EQ("status", string(constants.JobStatusQueued)),
		)).
		Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyClaimed
	}
	return r.Get(ctx, id)
}

func (r *SQLJobRepository) ownedBy(id uuid.UUID, workerID string) *entsql.Predicate {
	return entsql.And(
		entsql.EQ("id", id.String()),
		entsql.EQ("status", string(constants.JobStatusProcessing)),
		entsql.EQ("claimed_by", workerID),
	)
}

// leaseResult maps a zero-row CAS to JobNotFound or ErrLeaseLost.
func (r *SQLJobRepository) leaseResult(ctx context.Context, id uuid.UUID, n int64) error {
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrLeaseLost
}

func (r *SQLJobRepository) Heartbeat(ctx context.Context, id uuid.UUID, workerID string, lease time.Duration) error {
	query, args := r.b().Update(jobsTableName).
		Set("lease_expires_at", r.now().Add(lease).UnixMilli()).
		Where(r.ownedBy(id, workerID)).
		Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		return err
	}
	return r.leaseResult(ctx, id, n)
}

func (r *SQLJobRepository) Complete(ctx context.Context, id uuid.UUID, workerID, outputKey string, pageCount int) error {
	query, args := r.b().Update(jobsTableName).
		Set("status", string(constants.JobStatusDone)).
		Set("output_key", outputKey).
		Set("page_count", pageCount).
		Set("completed_at", r.now().UnixMilli()).
		SetNull("lease_expires_at").
		Where(r.ownedBy(id, workerID)).
		Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		return err
	}
	if err := r.leaseResult(ctx, id, n); err != nil {
		return err
	}
	r.log.Info("job done", "job_id", id, "pages", pageCount)
	return nil
}

func (r *SQLJobRepository) Fail(ctx context.Context, id uuid.UUID, workerID string, kind common.ErrorKind, detail string) error {
	detail = truncateDetail(detail)
	query, args := r.failUpdate(kind, detail).Where(r.ownedBy(id, workerID)).Query()
	n, err := r.exec(ctx, query, args)
	if err != nil {
		return err
	}
	if err := r.leaseResult(ctx, id, n); err != nil {
		return err
	}
	r.log.Warn("job failed", "job_id", id, "kind", kind, "error", detail)
	return nil
}

func (r *SQLJobRepository) failUpdate(kind common.ErrorKind, detail string) *entsql.UpdateBuilder {
	return r.b().Update(jobsTableName).
		Set("status", string(constants.JobStatusFailed)).
		Set("error_kind", string(kind)).
		Set("error_detail", detail).
		Set("completed_at", r.now().UnixMilli()).
		SetNull("lease_expires_at")
}

func (r *SQLJobRepository) ExpireLeases(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	stale := entsql.And(
		entsql.EQ("status", string(constants.JobStatusProcessing)),
		entsql.NotNull("lease_expires_at"),
		entsql.LT("lease_expires_at", now.UnixMilli()),
	)
	query, args := r.b().Select("id").From(r.b().Table(jobsTableName)).Where(stale).Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []uuid.UUID
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			r.log.Warn("skipping malformed job id", "id", raw)
			continue
		}
		// re-check staleness so a heartbeat that landed in between wins
		query, args := r.failUpdate(common.KindPipelineFailure, LeaseExpiredDetail).
			Where(entsql.And(entsql.EQ("id", raw), stale)).
			Query()
		n, err := r.exec(ctx, query, args)
		if err != nil {
			return expired, err
		}
		if n > 0 {
			r.log.Warn("job lease expired", "job_id", id)
			expired = append(expired, id)
		}
	}
	return expired, nil
}

func (r *SQLJobRepository) ListByStatus(ctx context.Context, status constants.JobStatus, limit int) ([]*entity.Job, error) {
	sel := r.b().Select(jobColumnNames()...).
		From(r.b().Table(jobsTableName)).
		Where(entsql.EQ("status", string(status))).
		OrderBy(entsql.Asc("submitted_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	return r.query(ctx, query, args)
}

func (r *SQLJobRepository) List(ctx context.Context, limit int) ([]*entity.Job, error) {
	sel := r.b().Select(jobColumnNames()...).
		From(r.b().Table(jobsTableName)).
		OrderBy(entsql.Desc("submitted_at"))
	if limit > 0 {
		sel.Limit(limit)
	}
	query, args := sel.Query()
	return r.query(ctx, query, args)
}

func (r *SQLJobRepository) Stats(ctx context.Context) (entity.JobStats, error) {
	var s entity.JobStats
	query, args := r.b().Select("status", entsql.Count("*")).
		From(r.b().Table(jobsTableName)).
		GroupBy("status").
		Query()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return s, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		addStat(&s, constants.JobStatus(status), n)
	}
	return s, rows.Err()
}

func (r *SQLJobRepository) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("registry update failed", "error", err)
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLJobRepository) query(ctx context.Context, query string, args []any) ([]*entity.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// scanJob reads columns in jobsColumns order.
func scanJob(rows *sql.Rows) (*entity.Job, error) {
	var (
		j                                        entity.Job
		id, status, docType, langs               string
		outputKey, errKind, errDetail, claimedBy sql.NullString
		leaseExp, startedAt, completedAt         sql.NullInt64
		submittedAt                              int64
	)
	err := rows.Scan(
		&id, &status, &j.Filename, &docType, &j.ContentType, &j.SizeBytes, &j.ContentHash,
		&j.InputKey, &j.Options.DPI, &langs, &j.Options.GPU, &outputKey, &j.PageCount,
		&errKind, &errDetail, &claimedBy, &leaseExp, &j.Attempts,
		&submittedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("scan job id %q: %w", id, err)
	}
	j.Status = constants.JobStatus(status)
	j.DocType = constants.DocType(docType)
	if langs != "" {
		j.Options.Languages = strings.Split(langs, ",")
	}
	j.OutputKey = nullString(outputKey)
	j.ErrorKind = nullString(errKind)
	j.ErrorDetail = nullString(errDetail)
	j.ClaimedBy = nullString(claimedBy)
	j.LeaseExpiresAt = nullMillis(leaseExp)
	j.SubmittedAt = time.UnixMilli(submittedAt)
	j.StartedAt = nullMillis(startedAt)
	j.CompletedAt = nullMillis(completedAt)
	return &j, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
