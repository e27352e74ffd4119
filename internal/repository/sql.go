package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/okellar/invoiceflow/internal/common"
	"github.com/okellar/invoiceflow/internal/entity"
)

// Config holds result-store connection settings.
type Config struct {
	DSN         string
	MaxConns    int32
	DialTimeout time.Duration
}

// SQLStore implements Store over database/sql. A postgres:// DSN selects the
// pgx driver; anything else is treated as a SQLite path. Amounts are stored
// as decimal strings to stay exact and portable.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects, pings, and bootstraps the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, placeholder := driverFor(cfg.DSN)

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorageUnavailable, driver, err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}

	pingCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: ping: %v", common.ErrStorageUnavailable, err)
	}

	s := &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger: logger,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("store.connected", "driver", driver)
	return s, nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// driverFor picks the database driver and placeholder style from the DSN.
func driverFor(dsn string) (string, sq.PlaceholderFormat) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", sq.Dollar
	}
	return "sqlite", sq.Question
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS invoice_keys (
		invoice_number TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		vendor_name TEXT NOT NULL,
		invoice_date TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		po_number TEXT NOT NULL DEFAULT '',
		tax_amount TEXT,
		confidence REAL NOT NULL,
		status TEXT NOT NULL,
		source_document_ref TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(invoice_number)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_vendor ON invoices(vendor_name)`,
	`CREATE TABLE IF NOT EXISTS anomalies (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL,
		reason TEXT NOT NULL,
		type TEXT NOT NULL,
		confidence REAL,
		review_status TEXT NOT NULL,
		timestamp TEXT NOT NULL
	)`,
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", common.ErrStorageUnavailable, err)
		}
	}
	return nil
}

// InsertIfAbsent relies on the primary-key constraint for atomicity: two
// concurrent workers cannot both insert the same number.
func (s *SQLStore) InsertIfAbsent(ctx context.Context, invoiceNumber string) (bool, error) {
	query, args, err := s.sb.Insert("invoice_keys").
		Columns("invoice_number").
		Values(invoiceNumber).
		Suffix("ON CONFLICT (invoice_number) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%w: insert key: %v", common.ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) ReleaseReservation(ctx context.Context, invoiceNumber string) error {
	query, args, err := s.sb.Delete("invoice_keys").
		Where(sq.Eq{"invoice_number": invoiceNumber}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: release key: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) Persist(ctx context.Context, rec *entity.InvoiceRecord) error {
	var tax any
	if rec.TaxAmount != nil {
		tax = rec.TaxAmount.StringFixed(2)
	}
	query, args, err := s.sb.Insert("invoices").
		Columns("id", "invoice_number", "vendor_name", "invoice_date", "total_amount",
			"currency", "po_number", "tax_amount", "confidence", "status",
			"source_document_ref", "created_at").
		Values(rec.ID.String(), rec.InvoiceNumber, rec.VendorName,
			rec.InvoiceDate.Format("2006-01-02"), rec.TotalAmount.StringFixed(2),
			rec.Currency, rec.PONumber, tax, rec.Confidence, string(rec.Status),
			rec.SourceDocumentRef, rec.CreatedAt.UTC().Format(time.RFC3339)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			invoice_number = excluded.invoice_number,
			vendor_name = excluded.vendor_name,
			invoice_date = excluded.invoice_date,
			total_amount = excluded.total_amount,
			currency = excluded.currency,
			po_number = excluded.po_number,
			tax_amount = excluded.tax_amount,
			confidence = excluded.confidence,
			status = excluded.status,
			source_document_ref = excluded.source_document_ref`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: persist invoice: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) ExistsActive(ctx context.Context, invoiceNumber string) (bool, error) {
	query, args, err := s.sb.Select("COUNT(1)").
		From("invoices").
		Where(sq.Eq{"invoice_number": invoiceNumber}).
		Where(sq.NotEq{"status": string(entity.StatusFailed)}).
		ToSql()
	if err != nil {
		return false, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("%w: duplicate lookup: %v", common.ErrStorageUnavailable, err)
	}
	return n > 0, nil
}

func (s *SQLStore) GetByNumber(ctx context.Context, invoiceNumber string) (*entity.InvoiceRecord, error) {
	query, args, err := s.sb.Select("id", "invoice_number", "vendor_name", "invoice_date",
		"total_amount", "currency", "po_number", "tax_amount", "confidence", "status",
		"source_document_ref", "created_at").
		From("invoices").
		Where(sq.Eq{"invoice_number": invoiceNumber}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get invoice: %v", common.ErrStorageUnavailable, err)
	}
	return rec, nil
}

func (s *SQLStore) VendorHistory(ctx context.Context, vendorName string) (entity.VendorStats, error) {
	query, args, err := s.sb.Select("total_amount").
		From("invoices").
		Where(sq.Eq{"vendor_name": vendorName}).
		Where(sq.NotEq{"status": string(entity.StatusFailed)}).
		ToSql()
	if err != nil {
		return entity.VendorStats{}, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return entity.VendorStats{}, fmt.Errorf("%w: vendor history: %v", common.ErrStorageUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var totals []float64
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return entity.VendorStats{}, err
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		f, _ := d.Float64()
		totals = append(totals, f)
	}
	if err := rows.Err(); err != nil {
		return entity.VendorStats{}, err
	}
	return statsOf(totals), nil
}

func (s *SQLStore) UpdateRecord(ctx context.Context, rec *entity.InvoiceRecord) error {
	var tax any
	if rec.TaxAmount != nil {
		tax = rec.TaxAmount.StringFixed(2)
	}
	query, args, err := s.sb.Update("invoices").
		Set("vendor_name", rec.VendorName).
		Set("invoice_date", rec.InvoiceDate.Format("2006-01-02")).
		Set("total_amount", rec.TotalAmount.StringFixed(2)).
		Set("currency", rec.Currency).
		Set("po_number", rec.PONumber).
		Set("tax_amount", tax).
		Set("confidence", rec.Confidence).
		Set("status", string(rec.Status)).
		Where(sq.Eq{"id": rec.ID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: update invoice: %v", common.ErrStorageUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLStore) Append(ctx context.Context, a entity.Anomaly) error {
	var conf any
	if a.Confidence != nil {
		conf = *a.Confidence
	}
	query, args, err := s.sb.Insert("anomalies").
		Columns("id", "invoice_number", "file_name", "reason", "type",
			"confidence", "review_status", "timestamp").
		Values(a.ID.String(), a.InvoiceNumber, a.FileName, a.Reason, string(a.Type),
			conf, string(a.ReviewStatus), a.Timestamp.UTC().Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: append anomaly: %v", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLStore) ListNeedsReview(ctx context.Context) ([]entity.Anomaly, error) {
	query, args, err := s.sb.Select("id", "invoice_number", "file_name", "reason", "type",
		"confidence", "review_status", "timestamp").
		From("anomalies").
		Where(sq.Eq{"review_status": string(entity.ReviewNeeded)}).
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list anomalies: %v", common.ErrStorageUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []entity.Anomaly
	for rows.Next() {
		var (
			a       entity.Anomaly
			id, ts  string
			typ, rs string
			conf    sql.NullFloat64
		)
		if err := rows.Scan(&id, &a.InvoiceNumber, &a.FileName, &a.Reason, &typ, &conf, &rs, &ts); err != nil {
			return nil, err
		}
		a.ID, _ = uuid.Parse(id)
		a.Type = entity.AnomalyType(typ)
		a.ReviewStatus = entity.ReviewStatus(rs)
		if conf.Valid {
			v := conf.Float64
			a.Confidence = &v
		}
		a.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) MarkReviewed(ctx context.Context, id uuid.UUID) error {
	query, args, err := s.sb.Update("anomalies").
		Set("review_status", string(entity.ReviewDone)).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: mark reviewed: %v", common.ErrStorageUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func scanInvoice(row *sql.Row) (*entity.InvoiceRecord, error) {
	var (
		rec              entity.InvoiceRecord
		id, date, status string
		total, created   string
		tax              sql.NullString
	)
	if err := row.Scan(&id, &rec.InvoiceNumber, &rec.VendorName, &date, &total,
		&rec.Currency, &rec.PONumber, &tax, &rec.Confidence, &status,
		&rec.SourceDocumentRef, &created); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.InvoiceDate, err = time.Parse("2006-01-02", date); err != nil {
		return nil, err
	}
	if rec.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if tax.Valid {
		d, derr := decimal.NewFromString(tax.String)
		if derr == nil {
			rec.TaxAmount = &d
		}
	}
	rec.Status = entity.InvoiceStatus(status)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return &rec, nil
}
