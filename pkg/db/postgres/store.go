package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/entities"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
)

// Table names. Each entity table is (id TEXT PRIMARY KEY, doc JSONB, updated_at).
const (
	AccountsTable            = string(entities.Accounts)
	SessionsTable            = string(entities.Sessions)
	ErasTable                = string(entities.Eras)
	EraValidatorsTable       = string(entities.EraValidators)
	NominatorValidatorsTable = string(entities.NominatorValidators)
	ValidatorPayoutsTable    = string(entities.ValidatorPayouts)
	HistoryElementsTable     = string(entities.HistoryElements)
	CheckpointsTable         = string(entities.Checkpoints)
)

var documentTables = []string{
	AccountsTable,
	SessionsTable,
	ErasTable,
	EraValidatorsTable,
	NominatorValidatorsTable,
	ValidatorPayoutsTable,
	HistoryElementsTable,
}

// Schema returns the DDL applied by InitializeDB, in order.
func Schema() []string {
	stmts := make([]string, 0, len(documentTables)+5)
	for _, table := range documentTables {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	doc JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgx.Identifier{table}.Sanitize()))
	}
	stmts = append(stmts,
		`CREATE INDEX IF NOT EXISTS validator_payouts_era_idx ON validator_payouts (((doc->>'era')::bigint))`,
		`CREATE INDEX IF NOT EXISTS validator_payouts_validator_idx ON validator_payouts ((doc->>'validator'))`,
		`CREATE INDEX IF NOT EXISTS history_elements_address_idx ON history_elements ((doc->>'address'), ((doc->>'blockNumber')::bigint) DESC)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	chain TEXT PRIMARY KEY,
	height BIGINT NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, CheckpointsTable),
	)
	return stmts
}

// Store implements db.Store with one JSONB document table per entity kind.
type Store struct {
	client *Client
}

var _ db.Store = (*Store)(nil)

// NewStore creates missing tables and returns the store.
func NewStore(ctx context.Context, client *Client) (*Store, error) {
	s := &Store{client: client}
	if err := s.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// InitializeDB applies Schema in one transaction.
func (s *Store) InitializeDB(ctx context.Context) error {
	err := s.client.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, stmt := range Schema() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.client.Logger.Info("PostgreSQL entity tables ready", zap.Int("tables", len(documentTables)+1))
	return nil
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Close() error {
	s.client.Close()
	return nil
}

func getDoc[T any](ctx context.Context, s *Store, table, id string) (*T, error) {
	var doc []byte
	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", pgx.Identifier{table}.Sanitize())
	if err := s.client.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s %s: %w", table, id, db.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s %s: %w", table, id, err)
	}
	out := new(T)
	if err := json.Unmarshal(doc, out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", table, id, err)
	}
	return out, nil
}

func upsertDoc(ctx context.Context, s *Store, table, id string, v any) error {
	if id == "" {
		return fmt.Errorf("save %s: empty id", table)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", table, id, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, doc, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`, pgx.Identifier{table}.Sanitize())
	if err := s.client.Exec(ctx, query, id, string(doc)); err != nil {
		return fmt.Errorf("save %s %s: %w", table, id, err)
	}
	return nil
}

func listDocs[T any](ctx context.Context, s *Store, table, tail string, args ...any) ([]T, error) {
	query := fmt.Sprintf("SELECT doc FROM %s %s", pgx.Identifier{table}.Sanitize(), tail)
	rows, err := s.client.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*staking.Account, error) {
	return getDoc[staking.Account](ctx, s, AccountsTable, id)
}

func (s *Store) SaveAccount(ctx context.Context, a *staking.Account) error {
	return upsertDoc(ctx, s, AccountsTable, a.ID, a)
}

func (s *Store) GetSession(ctx context.Context, index uint32) (*staking.Session, error) {
	return getDoc[staking.Session](ctx, s, SessionsTable, staking.SessionID(index))
}

func (s *Store) SaveSession(ctx context.Context, v *staking.Session) error {
	return upsertDoc(ctx, s, SessionsTable, staking.SessionID(v.ID), v)
}

func (s *Store) GetEra(ctx context.Context, index uint32) (*staking.Era, error) {
	return getDoc[staking.Era](ctx, s, ErasTable, staking.EraID(index))
}

func (s *Store) SaveEra(ctx context.Context, e *staking.Era) error {
	return upsertDoc(ctx, s, ErasTable, staking.EraID(e.ID), e)
}

func (s *Store) GetEraValidator(ctx context.Context, id string) (*staking.EraValidator, error) {
	return getDoc[staking.EraValidator](ctx, s, EraValidatorsTable, id)
}

func (s *Store) SaveEraValidator(ctx context.Context, v *staking.EraValidator) error {
	return upsertDoc(ctx, s, EraValidatorsTable, v.ID, v)
}

func (s *Store) GetNominatorValidator(ctx context.Context, id string) (*staking.NominatorValidator, error) {
	return getDoc[staking.NominatorValidator](ctx, s, NominatorValidatorsTable, id)
}

func (s *Store) SaveNominatorValidator(ctx context.Context, nv *staking.NominatorValidator) error {
	return upsertDoc(ctx, s, NominatorValidatorsTable, nv.ID, nv)
}

func (s *Store) GetValidatorPayout(ctx context.Context, id string) (*staking.ValidatorPayout, error) {
	return getDoc[staking.ValidatorPayout](ctx, s, ValidatorPayoutsTable, id)
}

func (s *Store) SaveValidatorPayout(ctx context.Context, p *staking.ValidatorPayout) error {
	return upsertDoc(ctx, s, ValidatorPayoutsTable, p.ID, p)
}

func (s *Store) GetHistoryElement(ctx context.Context, id string) (*staking.HistoryElement, error) {
	return getDoc[staking.HistoryElement](ctx, s, HistoryElementsTable, id)
}

func (s *Store) SaveHistoryElement(ctx context.Context, h *staking.HistoryElement) error {
	return upsertDoc(ctx, s, HistoryElementsTable, h.ID, h)
}

func (s *Store) ListEras(ctx context.Context, limit int) ([]staking.Era, error) {
	return listDocs[staking.Era](ctx, s, ErasTable,
		"ORDER BY (doc->>'id')::bigint DESC LIMIT $1", db.NormalizeLimit(limit, 0))
}

func (s *Store) ListPayoutsByEra(ctx context.Context, era uint32, limit int) ([]staking.ValidatorPayout, error) {
	return listDocs[staking.ValidatorPayout](ctx, s, ValidatorPayoutsTable,
		"WHERE (doc->>'era')::bigint = $1 ORDER BY doc->>'validator' LIMIT $2", int64(era), db.NormalizeLimit(limit, 0))
}

func (s *Store) ListPayoutsByValidator(ctx context.Context, validator string, limit int) ([]staking.ValidatorPayout, error) {
	return listDocs[staking.ValidatorPayout](ctx, s, ValidatorPayoutsTable,
		"WHERE doc->>'validator' = $1 ORDER BY (doc->>'era')::bigint DESC LIMIT $2", validator, db.NormalizeLimit(limit, 0))
}

func (s *Store) ListHistory(ctx context.Context, address string, limit int) ([]staking.HistoryElement, error) {
	return listDocs[staking.HistoryElement](ctx, s, HistoryElementsTable,
		"WHERE doc->>'address' = $1 ORDER BY (doc->>'blockNumber')::bigint DESC, id LIMIT $2", address, db.NormalizeLimit(limit, 0))
}

func (s *Store) LastIndexed(ctx context.Context, chain string) (uint64, error) {
	var height int64
	query := fmt.Sprintf("SELECT height FROM %s WHERE chain = $1", CheckpointsTable)
	if err := s.client.QueryRow(ctx, query, chain).Scan(&height); err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("last indexed %s: %w", chain, err)
	}
	return uint64(height), nil
}

// RecordIndexed never moves the checkpoint backwards.
func (s *Store) RecordIndexed(ctx context.Context, chain string, height uint64) error {
	query := fmt.Sprintf(`INSERT INTO %[1]s (chain, height, indexed_at) VALUES ($1, $2, now())
ON CONFLICT (chain) DO UPDATE SET height = GREATEST(%[1]s.height, EXCLUDED.height), indexed_at = EXCLUDED.indexed_at`, CheckpointsTable)
	if err := s.client.Exec(ctx, query, chain, int64(height)); err != nil {
		return fmt.Errorf("record indexed %s@%d: %w", chain, height, err)
	}
	return nil
}
