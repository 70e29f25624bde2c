package repository

import (
	"context"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const jobsTableName = "jobs"

// Timestamps are stored as unix milliseconds so lease comparisons behave the
// same on every dialect.
var (
	jobsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "filename", Type: field.TypeString, Size: 512},
		{Name: "doc_type", Type: field.TypeString, Size: 16},
		{Name: "content_type", Type: field.TypeString, Size: 128},
		{Name: "size_bytes", Type: field.TypeInt64},
		{Name: "content_hash", Type: field.TypeString, Size: 64},
		{Name: "input_key", Type: field.TypeString, Size: 1024},
		{Name: "dpi", Type: field.TypeInt},
		{Name: "languages", Type: field.TypeString, Size: 256},
		{Name: "gpu", Type: field.TypeBool, Default: false},
		{Name: "output_key", Type: field.TypeString, Size: 1024, Nullable: true},
		{Name: "page_count", Type: field.TypeInt, Default: 0},
		{Name: "error_kind", Type: field.TypeString, Size: 32, Nullable: true},
		{Name: "error_detail", Type: field.TypeString, Size: 2147483647, Nullable: true},
		{Name: "claimed_by", Type: field.TypeString, Size: 128, Nullable: true},
		{Name: "lease_expires_at", Type: field.TypeInt64, Nullable: true},
		{Name: "attempts", Type: field.TypeInt, Default: 0},
		{Name: "submitted_at", Type: field.TypeInt64},
		{Name: "started_at", Type: field.TypeInt64, Nullable: true},
		{Name: "completed_at", Type: field.TypeInt64, Nullable: true},
	}
	// JobsTable is the registry table definition handed to ent's migrator.
	JobsTable = &schema.Table{
		Name:       jobsTableName,
		Columns:    jobsColumns,
		PrimaryKey: []*schema.Column{jobsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "jobs_status_lease", Columns: []*schema.Column{jobsColumns[1], jobsColumns[16]}},
			{Name: "jobs_submitted_at", Columns: []*schema.Column{jobsColumns[18]}},
		},
	}
)

func jobColumnNames() []string {
	names := make([]string, len(jobsColumns))
	for i, c := range jobsColumns {
		names[i] = c.Name
	}
	return names
}

// EnsureSchema creates or upgrades the jobs table.
func EnsureSchema(ctx context.Context, drv *entsql.Driver, logger *slog.Logger) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	if err := m.Create(ctx, JobsTable); err != nil {
		logger.Error("schema migration failed", "dialect", drv.Dialect(), "error", err)
		return err
	}
	logger.Info("schema up to date", "dialect", drv.Dialect(), "table", jobsTableName)
	return nil
}
