// Package memory is the in-process Store used by tests, the replay CLI and single-node runs.
// Rows are kept JSON encoded so callers never share memory with stored entities.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/canopy-network/payoutx/pkg/db"
	"github.com/canopy-network/payoutx/pkg/db/entities"
	"github.com/canopy-network/payoutx/pkg/db/models/staking"
)

type table[T any] struct {
	kind string
	rows *xsync.Map[string, []byte]
}

func newTable[T any](kind string) table[T] {
	return table[T]{kind: kind, rows: xsync.NewMap[string, []byte]()}
}

func (t table[T]) get(id string) (*T, error) {
	raw, ok := t.rows.Load(id)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", t.kind, id, db.ErrNotFound)
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", t.kind, id, err)
	}
	return out, nil
}

func (t table[T]) put(id string, v *T) error {
	if id == "" {
		return fmt.Errorf("save %s: empty id", t.kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", t.kind, id, err)
	}
	t.rows.Store(id, raw)
	return nil
}

func (t table[T]) filter(keep func(*T) bool) ([]T, error) {
	var (
		out    []T
		decErr error
	)
	t.rows.Range(func(id string, raw []byte) bool {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			decErr = fmt.Errorf("decode %s %s: %w", t.kind, id, err)
			return false
		}
		if keep == nil || keep(&v) {
			out = append(out, v)
		}
		return true
	})
	return out, decErr
}

func (t table[T]) size() int { return t.rows.Size() }

// Store implements db.Store on xsync maps.
type Store struct {
	accounts    table[staking.Account]
	sessions    table[staking.Session]
	eras        table[staking.Era]
	validators  table[staking.EraValidator]
	nominations table[staking.NominatorValidator]
	payouts     table[staking.ValidatorPayout]
	history     table[staking.HistoryElement]
	checkpoints *xsync.Map[string, staking.Checkpoint]
}

var _ db.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:    newTable[staking.Account]("account"),
		sessions:    newTable[staking.Session]("session"),
		eras:        newTable[staking.Era]("era"),
		validators:  newTable[staking.EraValidator]("era validator"),
		nominations: newTable[staking.NominatorValidator]("nominator validator"),
		payouts:     newTable[staking.ValidatorPayout]("validator payout"),
		history:     newTable[staking.HistoryElement]("history element"),
		checkpoints: xsync.NewMap[string, staking.Checkpoint](),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Close() error { return nil }

// Counts returns the number of stored rows per kind. Used by the replay CLI summary.
func (s *Store) Counts() map[string]int {
	return map[string]int{
		entities.Accounts.String():            s.accounts.size(),
		entities.Sessions.String():            s.sessions.size(),
		entities.Eras.String():                s.eras.size(),
		entities.EraValidators.String():       s.validators.size(),
		entities.NominatorValidators.String(): s.nominations.size(),
		entities.ValidatorPayouts.String():    s.payouts.size(),
		entities.HistoryElements.String():     s.history.size(),
	}
}

func (s *Store) GetAccount(_ context.Context, id string) (*staking.Account, error) {
	return s.accounts.get(id)
}

func (s *Store) SaveAccount(_ context.Context, a *staking.Account) error {
	return s.accounts.put(a.ID, a)
}

func (s *Store) GetSession(_ context.Context, index uint32) (*staking.Session, error) {
	return s.sessions.get(staking.SessionID(index))
}

func (s *Store) SaveSession(_ context.Context, v *staking.Session) error {
	return s.sessions.put(staking.SessionID(v.ID), v)
}

func (s *Store) GetEra(_ context.Context, index uint32) (*staking.Era, error) {
	return s.eras.get(staking.EraID(index))
}

func (s *Store) SaveEra(_ context.Context, e *staking.Era) error {
	return s.eras.put(staking.EraID(e.ID), e)
}

func (s *Store) GetEraValidator(_ context.Context, id string) (*staking.EraValidator, error) {
	return s.validators.get(id)
}

func (s *Store) SaveEraValidator(_ context.Context, v *staking.EraValidator) error {
	return s.validators.put(v.ID, v)
}

func (s *Store) GetNominatorValidator(_ context.Context, id string) (*staking.NominatorValidator, error) {
	return s.nominations.get(id)
}

func (s *Store) SaveNominatorValidator(_ context.Context, nv *staking.NominatorValidator) error {
	return s.nominations.put(nv.ID, nv)
}

func (s *Store) GetValidatorPayout(_ context.Context, id string) (*staking.ValidatorPayout, error) {
	return s.payouts.get(id)
}

func (s *Store) SaveValidatorPayout(_ context.Context, p *staking.ValidatorPayout) error {
	return s.payouts.put(p.ID, p)
}

func (s *Store) GetHistoryElement(_ context.Context, id string) (*staking.HistoryElement, error) {
	return s.history.get(id)
}

func (s *Store) SaveHistoryElement(_ context.Context, h *staking.HistoryElement) error {
	return s.history.put(h.ID, h)
}

func (s *Store) ListEras(_ context.Context, limit int) ([]staking.Era, error) {
	eras, err := s.eras.filter(nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(eras, func(i, j int) bool { return eras[i].ID > eras[j].ID })
	return head(eras, db.NormalizeLimit(limit, 0)), nil
}

func (s *Store) ListPayoutsByEra(_ context.Context, era uint32, limit int) ([]staking.ValidatorPayout, error) {
	out, err := s.payouts.filter(func(p *staking.ValidatorPayout) bool { return p.Era == era })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Validator < out[j].Validator })
	return head(out, db.NormalizeLimit(limit, 0)), nil
}

func (s *Store) ListPayoutsByValidator(_ context.Context, validator string, limit int) ([]staking.ValidatorPayout, error) {
	out, err := s.payouts.filter(func(p *staking.ValidatorPayout) bool { return p.Validator == validator })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Era > out[j].Era })
	return head(out, db.NormalizeLimit(limit, 0)), nil
}

func (s *Store) ListHistory(_ context.Context, address string, limit int) ([]staking.HistoryElement, error) {
	out, err := s.history.filter(func(h *staking.HistoryElement) bool { return h.Address == address })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].ID < out[j].ID
	})
	return head(out, db.NormalizeLimit(limit, 0)), nil
}

func (s *Store) LastIndexed(_ context.Context, chain string) (uint64, error) {
	cp, ok := s.checkpoints.Load(chain)
	if !ok {
		return 0, nil
	}
	return cp.Height, nil
}

func (s *Store) RecordIndexed(_ context.Context, chain string, height uint64) error {
	s.checkpoints.Compute(chain, func(old staking.Checkpoint, loaded bool) (staking.Checkpoint, xsync.ComputeOp) {
		if loaded && old.Height >= height {
			return old, xsync.CancelOp
		}
		return staking.Checkpoint{Chain: chain, Height: height, IndexedAt: time.Now().UTC()}, xsync.UpdateOp
	})
	return nil
}

func head[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
