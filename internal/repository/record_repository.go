package repository

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/storeit/dashboard/internal/database"
	"github.com/storeit/dashboard/internal/models"
)

// RecordRepository defines data access for the host and customer tables.
type RecordRepository interface {
	// ListHosts returns every host row ordered by id, so first-occurrence dedupe
	// follows insertion order.
	ListHosts(ctx context.Context) ([]models.HostRecord, error)

	// ListCustomers returns every customer row ordered by id.
	ListCustomers(ctx context.Context) ([]models.CustomerRecord, error)

	// ReplaceAll swaps the contents of both tables in one transaction.
	ReplaceAll(ctx context.Context, hosts []models.HostRecord, customers []models.CustomerRecord) error
}

// PostgresSource adapts a RecordRepository to the dashboard's table source contract.
type PostgresSource struct {
	RecordRepository
	db *database.Database
}

// NewPostgresSource creates a table source backed by db.
func NewPostgresSource(db *database.Database) *PostgresSource {
	return &PostgresSource{RecordRepository: NewRecordRepository(db), db: db}
}

// Name identifies the source in logs and health output.
func (s *PostgresSource) Name() string { return "postgres" }

// FetchHosts returns the full host table.
func (s *PostgresSource) FetchHosts(ctx context.Context) ([]models.HostRecord, error) {
	return s.ListHosts(ctx)
}

// FetchCustomers returns the full customer table.
func (s *PostgresSource) FetchCustomers(ctx context.Context) ([]models.CustomerRecord, error) {
	return s.ListCustomers(ctx)
}

// Ping checks the database connection.
func (s *PostgresSource) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Stats reports the connection pool behind the source.
func (s *PostgresSource) Stats() database.PoolStats {
	return s.db.Stats()
}

type recordRepository struct {
	db *database.Database
}

// NewRecordRepository creates a new instance of RecordRepository.
func NewRecordRepository(db *database.Database) RecordRepository {
	return &recordRepository{db: db}
}

var hostColumns = []string{
	"username",
	"latitude",
	"longitude",
	"available_start_date",
	"available_end_date",
	"postal_code",
	"transaction_count",
	"revenue_projected",
}

var customerColumns = []string{
	"username",
	"latitude",
	"longitude",
	"check_in_date",
	"end_date",
	"stage",
	"has_paid",
	"matched_host",
	"storage_cost",
}

func (r *recordRepository) ListHosts(ctx context.Context) ([]models.HostRecord, error) {
	query := `
		SELECT
			username,
			latitude,
			longitude,
			available_start_date,
			available_end_date,
			postal_code,
			transaction_count,
			revenue_projected
		FROM hosts
		ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hosts: %w", err)
	}
	defer rows.Close()

	hosts := []models.HostRecord{}
	for rows.Next() {
		var h models.HostRecord
		var transactions *int32
		err := rows.Scan(
			&h.Username,
			&h.Latitude,
			&h.Longitude,
			&h.AvailableStart,
			&h.AvailableEnd,
			&h.PostalCode,
			&transactions,
			&h.RevenueProjected,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan host row: %w", err)
		}
		if transactions != nil {
			n := int(*transactions)
			h.TransactionCount = &n
		}
		h.AvailableStart = normalizeDate(h.AvailableStart)
		h.AvailableEnd = normalizeDate(h.AvailableEnd)
		hosts = append(hosts, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating host rows: %w", err)
	}
	return hosts, nil
}

func (r *recordRepository) ListCustomers(ctx context.Context) ([]models.CustomerRecord, error) {
	query := `
		SELECT
			username,
			latitude,
			longitude,
			check_in_date,
			end_date,
			stage,
			has_paid,
			matched_host,
			storage_cost
		FROM customers
		ORDER BY id
	`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	customers := []models.CustomerRecord{}
	for rows.Next() {
		var c models.CustomerRecord
		var stage *int32
		err := rows.Scan(
			&c.Username,
			&c.Latitude,
			&c.Longitude,
			&c.CheckInDate,
			&c.EndDate,
			&stage,
			&c.HasPaid,
			&c.MatchedHost,
			&c.StorageCost,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		// A NULL stage never satisfies a stage predicate.
		c.Stage = models.StageUnknown
		if stage != nil {
			c.Stage = models.Stage(*stage)
		}
		c.CheckInDate = normalizeDate(c.CheckInDate)
		c.EndDate = normalizeDate(c.EndDate)
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customer rows: %w", err)
	}
	return customers, nil
}

func (r *recordRepository) ReplaceAll(ctx context.Context, hosts []models.HostRecord, customers []models.CustomerRecord) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE hosts, customers RESTART IDENTITY`); err != nil {
		return fmt.Errorf("failed to truncate tables: %w", err)
	}

	hostRows := make([][]any, 0, len(hosts))
	for _, h := range hosts {
		hostRows = append(hostRows, []any{
			h.Username, h.Latitude, h.Longitude, h.AvailableStart, h.AvailableEnd,
			h.PostalCode, h.TransactionCount, h.RevenueProjected,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"hosts"}, hostColumns, pgx.CopyFromRows(hostRows)); err != nil {
		return fmt.Errorf("failed to copy hosts: %w", err)
	}

	customerRows := make([][]any, 0, len(customers))
	for _, c := range customers {
		customerRows = append(customerRows, []any{
			c.Username, c.Latitude, c.Longitude, c.CheckInDate, c.EndDate,
			stageColumn(c.Stage), c.HasPaid, c.MatchedHost, c.StorageCost,
		})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"customers"}, customerColumns, pgx.CopyFromRows(customerRows)); err != nil {
		return fmt.Errorf("failed to copy customers: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// stageColumn maps a stage to the nullable INTEGER column. Unknown and
// out-of-range stages are stored as NULL so they read back as unknown.
func stageColumn(s models.Stage) *int32 {
	if s == models.StageUnknown || s < math.MinInt32 || s > math.MaxInt32 {
		return nil
	}
	v := int32(s)
	return &v
}

// normalizeDate pins DATE values to midnight UTC, matching the CSV source.
func normalizeDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := models.DateOf(*t)
	return &d
}
