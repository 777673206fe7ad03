package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/entities"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
)

var checkpointsTable = entities.Checkpoints.TableName()

type column struct {
	Name string
	Type string
}

// kind maps one entity type onto a ReplacingMergeTree(updated_at) table. Every table stores the
// full entity as a JSON document plus the lookup columns the listing queries filter on.
type kind[T any] struct {
	table   string
	columns []column
	row     func(*T) (id string, values []any)
}

func (k kind[T]) ddl(database string) string {
	cols := []string{"id String"}
	for _, c := range k.columns {
		cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type))
	}
	cols = append(cols, "doc String CODEC(ZSTD(3))", "updated_at DateTime64(9)")
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s.%s (\n\t%s\n) ENGINE = %s(updated_at)\nORDER BY id",
		database, k.table, strings.Join(cols, ",\n\t"), ReplacingMergeTree,
	)
}

func (k kind[T]) insert(database string) string {
	names := []string{"id"}
	for _, c := range k.columns {
		names = append(names, c.Name)
	}
	names = append(names, "doc", "updated_at")
	return fmt.Sprintf("INSERT INTO %s.%s (%s)", database, k.table, strings.Join(names, ", "))
}

var (
	accounts = kind[staking.Account]{
		table: entities.Accounts.TableName(),
		row: func(a *staking.Account) (string, []any) {
			return a.ID, nil
		},
	}
	sessions = kind[staking.Session]{
		table:   entities.Sessions.TableName(),
		columns: []column{{"start_block", "UInt64"}},
		row: func(s *staking.Session) (string, []any) {
			return staking.SessionID(s.ID), []any{s.StartBlock}
		},
	}
	eras = kind[staking.Era]{
		table:   entities.Eras.TableName(),
		columns: []column{{"era", "UInt32"}, {"start_block", "UInt64"}},
		row: func(e *staking.Era) (string, []any) {
			return staking.EraID(e.ID), []any{e.ID, e.StartBlock}
		},
	}
	eraValidators = kind[staking.EraValidator]{
		table:   entities.EraValidators.TableName(),
		columns: []column{{"era", "UInt32"}, {"validator", "String"}},
		row: func(v *staking.EraValidator) (string, []any) {
			return v.ID, []any{v.Era, v.Validator}
		},
	}
	nominatorValidators = kind[staking.NominatorValidator]{
		table:   entities.NominatorValidators.TableName(),
		columns: []column{{"era", "UInt32"}, {"nominator", "String"}, {"validator", "String"}},
		row: func(nv *staking.NominatorValidator) (string, []any) {
			return nv.ID, []any{nv.Era, nv.Nominator, nv.Validator}
		},
	}
	payouts = kind[staking.ValidatorPayout]{
		table:   entities.ValidatorPayouts.TableName(),
		columns: []column{{"era", "UInt32"}, {"validator", "String"}, {"is_claimed", "UInt8"}},
		row: func(p *staking.ValidatorPayout) (string, []any) {
			var claimed uint8
			if p.IsClaimed {
				claimed = 1
			}
			return p.ID, []any{p.Era, p.Validator, claimed}
		},
	}
	historyElements = kind[staking.HistoryElement]{
		table:   entities.HistoryElements.TableName(),
		columns: []column{{"address", "String"}, {"block_number", "UInt64"}, {"kind", "LowCardinality(String)"}},
		row: func(h *staking.HistoryElement) (string, []any) {
			return h.ID, []any{h.Address, h.BlockNumber, h.Kind()}
		},
	}
)

// Store implements db.Store on ClickHouse. Reads use FINAL so a Get always observes the latest
// Save for a key.
type Store struct {
	client *Client
	now    func() time.Time
}

var _ db.Store = (*Store)(nil)

// NewStore creates the database and tables when missing.
func NewStore(ctx context.Context, client *Client) (*Store, error) {
	s := &Store{client: client, now: func() time.Time { return time.Now().UTC() }}
	if err := s.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Schema returns the DDL statements in creation order.
func Schema(database string) []string {
	return []string{
		accounts.ddl(database),
		sessions.ddl(database),
		eras.ddl(database),
		eraValidators.ddl(database),
		nominatorValidators.ddl(database),
		payouts.ddl(database),
		historyElements.ddl(database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	chain LowCardinality(String),
	height UInt64 CODEC(DoubleDelta, LZ4),
	indexed_at DateTime64(6)
) ENGINE = %s
ORDER BY (chain, height)`, database, checkpointsTable, MergeTree),
	}
}

// InitializeDB creates the target database and every table.
func (s *Store) InitializeDB(ctx context.Context) error {
	if err := s.client.CreateDbIfNotExists(ctx); err != nil {
		return fmt.Errorf("create database %s: %w", s.client.Database, err)
	}
	for _, ddl := range Schema(s.client.Database) {
		if err := s.client.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	s.client.Logger.Info("ClickHouse entity tables ready", zap.String("database", s.client.Database))
	return nil
}

func (s *Store) Name() string { return "clickhouse" }

func (s *Store) Close() error { return s.client.Close() }

func getDoc[T any](ctx context.Context, s *Store, k kind[T], id string) (*T, error) {
	var doc string
	query := fmt.Sprintf("SELECT doc FROM %s FINAL WHERE id = ? LIMIT 1", s.client.Table(k.table))
	if err := s.client.QueryRow(ctx, query, id).Scan(&doc); err != nil {
		if IsNoRows(err) {
			return nil, fmt.Errorf("%s %s: %w", k.table, id, db.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s %s: %w", k.table, id, err)
	}
	out := new(T)
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", k.table, id, err)
	}
	return out, nil
}

func saveDoc[T any](ctx context.Context, s *Store, k kind[T], v *T) error {
	id, values := k.row(v)
	if id == "" {
		return fmt.Errorf("save %s: empty id", k.table)
	}
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", k.table, id, err)
	}

	batch, err := s.client.PrepareBatch(ctx, k.insert(s.client.Database))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", k.table, err)
	}
	defer func() { _ = batch.Abort() }()

	args := make([]any, 0, len(values)+3)
	args = append(args, id)
	args = append(args, values...)
	args = append(args, string(doc), s.now())
	if err := batch.Append(args...); err != nil {
		return fmt.Errorf("append %s %s: %w", k.table, id, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("insert %s %s: %w", k.table, id, err)
	}
	return nil
}

type docRow struct {
	Doc string `ch:"doc"`
}

func listDocs[T any](ctx context.Context, s *Store, k kind[T], where, orderBy string, limit int, args ...any) ([]T, error) {
	query := fmt.Sprintf("SELECT doc FROM %s FINAL", s.client.Table(k.table))
	if where != "" {
		query += " WHERE " + where
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []docRow
	if err := s.client.SelectWithFinal(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", k.table, err)
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := json.Unmarshal([]byte(r.Doc), &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", k.table, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*staking.Account, error) {
	return getDoc(ctx, s, accounts, id)
}

func (s *Store) SaveAccount(ctx context.Context, a *staking.Account) error {
	return saveDoc(ctx, s, accounts, a)
}

func (s *Store) GetSession(ctx context.Context, index uint32) (*staking.Session, error) {
	return getDoc(ctx, s, sessions, staking.SessionID(index))
}

func (s *Store) SaveSession(ctx context.Context, v *staking.Session) error {
	return saveDoc(ctx, s, sessions, v)
}

func (s *Store) GetEra(ctx context.Context, index uint32) (*staking.Era, error) {
	return getDoc(ctx, s, eras, staking.EraID(index))
}

func (s *Store) SaveEra(ctx context.Context, e *staking.Era) error {
	return saveDoc(ctx, s, eras, e)
}

func (s *Store) GetEraValidator(ctx context.Context, id string) (*staking.EraValidator, error) {
	return getDoc(ctx, s, eraValidators, id)
}

func (s *Store) SaveEraValidator(ctx context.Context, v *staking.EraValidator) error {
	return saveDoc(ctx, s, eraValidators, v)
}

func (s *Store) GetNominatorValidator(ctx context.Context, id string) (*staking.NominatorValidator, error) {
	return getDoc(ctx, s, nominatorValidators, id)
}

func (s *Store) SaveNominatorValidator(ctx context.Context, nv *staking.NominatorValidator) error {
	return saveDoc(ctx, s, nominatorValidators, nv)
}

func (s *Store) GetValidatorPayout(ctx context.Context, id string) (*staking.ValidatorPayout, error) {
	return getDoc(ctx, s, payouts, id)
}

func (s *Store) SaveValidatorPayout(ctx context.Context, p *staking.ValidatorPayout) error {
	return saveDoc(ctx, s, payouts, p)
}

func (s *Store) GetHistoryElement(ctx context.Context, id string) (*staking.HistoryElement, error) {
	return getDoc(ctx, s, historyElements, id)
}

func (s *Store) SaveHistoryElement(ctx context.Context, h *staking.HistoryElement) error {
	return saveDoc(ctx, s, historyElements, h)
}

func (s *Store) ListEras(ctx context.Context, limit int) ([]staking.Era, error) {
	return listDocs(ctx, s, eras, "", "era DESC", db.NormalizeLimit(limit, 0))
}

func (s *Store) ListPayoutsByEra(ctx context.Context, era uint32, limit int) ([]staking.ValidatorPayout, error) {
	return listDocs(ctx, s, payouts, "era = ?", "validator", db.NormalizeLimit(limit, 0), era)
}

func (s *Store) ListPayoutsByValidator(ctx context.Context, validator string, limit int) ([]staking.ValidatorPayout, error) {
	return listDocs(ctx, s, payouts, "validator = ?", "era DESC", db.NormalizeLimit(limit, 0), validator)
}

func (s *Store) ListHistory(ctx context.Context, address string, limit int) ([]staking.HistoryElement, error) {
	return listDocs(ctx, s, historyElements, "address = ?", "block_number DESC, id", db.NormalizeLimit(limit, 0), address)
}

// LastIndexed returns the highest recorded height, 0 when the chain has none.
func (s *Store) LastIndexed(ctx context.Context, chain string) (uint64, error) {
	var height uint64
	query := fmt.Sprintf("SELECT max(height) FROM %s WHERE chain = ?", s.client.Table(checkpointsTable))
	if err := s.client.QueryRow(WithSequentialConsistency(ctx), query, chain).Scan(&height); err != nil {
		if IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("last indexed %s: %w", chain, err)
	}
	return height, nil
}

func (s *Store) RecordIndexed(ctx context.Context, chain string, height uint64) error {
	query := fmt.Sprintf("INSERT INTO %s (chain, height, indexed_at)", s.client.Table(checkpointsTable))
	batch, err := s.client.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare checkpoint insert: %w", err)
	}
	defer func() { _ = batch.Abort() }()

	if err := batch.Append(chain, height, s.now()); err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("record indexed %s@%d: %w", chain, height, err)
	}
	return nil
}
