package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fiscal-note-service/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS fiscal_config (
	id                   INTEGER PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	environment          INTEGER NOT NULL,
	uf_code              TEXT NOT NULL,
	cnpj                 TEXT NOT NULL,
	state_registration   TEXT NOT NULL,
	corporate_name       TEXT NOT NULL,
	trade_name           TEXT NOT NULL,
	tax_regime           INTEGER NOT NULL,
	certificate_path     TEXT NOT NULL,
	certificate_password TEXT NOT NULL,
	street               TEXT NOT NULL,
	number               TEXT NOT NULL,
	district             TEXT NOT NULL,
	city                 TEXT NOT NULL,
	city_code            TEXT NOT NULL,
	state                TEXT NOT NULL,
	postal_code          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fiscal_notes (
	id               UUID PRIMARY KEY,
	access_key       TEXT NOT NULL UNIQUE,
	number           TEXT NOT NULL,
	series           TEXT NOT NULL,
	issued_at        TIMESTAMPTZ NOT NULL,
	total_value      NUMERIC(15,2) NOT NULL,
	status           TEXT NOT NULL,
	protocol         TEXT NOT NULL,
	authorized_xml   TEXT NOT NULL,
	recipient_tax_id TEXT NOT NULL DEFAULT '',
	recipient_name   TEXT NOT NULL DEFAULT '',
	UNIQUE (series, number)
);

CREATE TABLE IF NOT EXISTS fiscal_note_items (
	id          BIGSERIAL PRIMARY KEY,
	note_id     UUID NOT NULL REFERENCES fiscal_notes(id),
	product_id  TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	unit_price  NUMERIC(15,2) NOT NULL,
	total_value NUMERIC(15,2) NOT NULL,
	ncm         TEXT NOT NULL,
	cfop        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fiscal_sequences (
	series      TEXT PRIMARY KEY,
	next_number BIGINT NOT NULL
);
`

// PostgresStore backs the repositories with a pgx pool. It implements
// ConfigRepository, NoteRepository and SequenceAllocator.
type PostgresStore struct {
	pool   *pgxpool.Pool
	series string
	logger *zap.Logger
}

func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		series: DefaultSeries,
		logger: logger.Named("storage"),
	}, nil
}

// DefaultSeries is the single emission series this issuer uses.
const DefaultSeries = "001"

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFiscalConfig(ctx context.Context) (*models.FiscalConfig, error) {
	var cfg models.FiscalConfig
	err := s.pool.QueryRow(ctx, `
		SELECT environment, uf_code, cnpj, state_registration, corporate_name,
		       trade_name, tax_regime, certificate_path, certificate_password,
		       street, number, district, city, city_code, state, postal_code
		FROM fiscal_config WHERE id = 1`).Scan(
		&cfg.Environment, &cfg.UFCode, &cfg.CNPJ, &cfg.StateRegistration,
		&cfg.CorporateName, &cfg.TradeName, &cfg.TaxRegime,
		&cfg.CertificatePath, &cfg.CertificatePassword,
		&cfg.Address.Street, &cfg.Address.Number, &cfg.Address.District,
		&cfg.Address.City, &cfg.Address.CityCode, &cfg.Address.State,
		&cfg.Address.PostalCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrConfigurationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fiscal config: %w", err)
	}
	return &cfg, nil
}

func (s *PostgresStore) LastNote(ctx context.Context) (*models.FiscalNote, error) {
	var note models.FiscalNote
	var total string
	err := s.pool.QueryRow(ctx, `
		SELECT id, access_key, number, series, issued_at, total_value::text,
		       status, protocol, recipient_tax_id, recipient_name
		FROM fiscal_notes WHERE series = $1
		ORDER BY number DESC LIMIT 1`, s.series).Scan(
		&note.ID, &note.AccessKey, &note.Number, &note.Series, &note.IssuedAt,
		&total, &note.Status, &note.Protocol,
		&note.RecipientTaxID, &note.RecipientName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last note: %w", err)
	}
	note.TotalValue, err = decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored total: %w", err)
	}
	return &note, nil
}

func (s *PostgresStore) SaveAuthorizedNote(ctx context.Context, note *models.FiscalNote) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO fiscal_notes
			(id, access_key, number, series, issued_at, total_value,
			 status, protocol, authorized_xml, recipient_tax_id, recipient_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		note.ID, note.AccessKey, note.Number, note.Series, note.IssuedAt,
		note.TotalValue.StringFixed(2), note.Status, note.Protocol,
		note.AuthorizedXML, note.RecipientTaxID, note.RecipientName)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}

	for _, item := range note.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO fiscal_note_items
				(note_id, product_id, quantity, unit_price, total_value, ncm, cfop)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			note.ID, item.ProductID, item.Quantity,
			item.UnitPrice.StringFixed(2), item.TotalValue.StringFixed(2),
			item.NCM, item.CFOP)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistenceFailed, err)
	}

	s.logger.Info("note persisted",
		zap.String("access_key", note.AccessKey),
		zap.String("number", note.Number))
	return nil
}

// AllocateNext consumes the next number for the issuer series in a
// single statement, so concurrent emissions cannot receive the same
// number. The sequence row is seeded past any note already persisted.
func (s *PostgresStore) AllocateNext(ctx context.Context) (models.SequenceAllocation, error) {
	var allocated int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO fiscal_sequences (series, next_number)
		VALUES ($1, COALESCE(
			(SELECT MAX(number::bigint) FROM fiscal_notes WHERE series = $1), 0) + 2)
		ON CONFLICT (series) DO UPDATE
			SET next_number = fiscal_sequences.next_number + 1
		RETURNING next_number - 1`, s.series).Scan(&allocated)
	if err != nil {
		return models.SequenceAllocation{}, fmt.Errorf("failed to allocate note number: %w", err)
	}

	return models.SequenceAllocation{
		Number: fmt.Sprintf("%09d", allocated),
		Series: s.series,
	}, nil
}
