package db

import (
	"context"
	"errors"

	"github.com/canopy-network/payoutx/pkg/db/models/staking"
)

// ErrNotFound is returned by Get* when no entity has the requested key.
var ErrNotFound = errors.New("entity not found")

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// EntityStore is the keyed get/save surface used by the mapping handlers. Save is an upsert by id.
// Implementations give read-your-writes within one process.
type EntityStore interface {
	GetAccount(ctx context.Context, id string) (*staking.Account, error)
	SaveAccount(ctx context.Context, a *staking.Account) error

	GetSession(ctx context.Context, index uint32) (*staking.Session, error)
	SaveSession(ctx context.Context, s *staking.Session) error

	GetEra(ctx context.Context, index uint32) (*staking.Era, error)
	SaveEra(ctx context.Context, e *staking.Era) error

	GetEraValidator(ctx context.Context, id string) (*staking.EraValidator, error)
	SaveEraValidator(ctx context.Context, v *staking.EraValidator) error

	GetNominatorValidator(ctx context.Context, id string) (*staking.NominatorValidator, error)
	SaveNominatorValidator(ctx context.Context, nv *staking.NominatorValidator) error

	GetValidatorPayout(ctx context.Context, id string) (*staking.ValidatorPayout, error)
	SaveValidatorPayout(ctx context.Context, p *staking.ValidatorPayout) error

	GetHistoryElement(ctx context.Context, id string) (*staking.HistoryElement, error)
	SaveHistoryElement(ctx context.Context, h *staking.HistoryElement) error
}

// QueryStore holds the listing reads served by the query API.
type QueryStore interface {
	ListEras(ctx context.Context, limit int) ([]staking.Era, error)
	ListPayoutsByEra(ctx context.Context, era uint32, limit int) ([]staking.ValidatorPayout, error)
	ListPayoutsByValidator(ctx context.Context, validator string, limit int) ([]staking.ValidatorPayout, error)
	ListHistory(ctx context.Context, address string, limit int) ([]staking.HistoryElement, error)
}

// CheckpointStore tracks indexing progress per chain.
type CheckpointStore interface {
	LastIndexed(ctx context.Context, chain string) (uint64, error)
	RecordIndexed(ctx context.Context, chain string, height uint64) error
}

// Store is the full persistence surface implemented by the memory, clickhouse and postgres
// backends.
type Store interface {
	EntityStore
	QueryStore
	CheckpointStore
	Name() string
	Close() error
}

// DefaultListLimit applies when callers pass a non-positive limit.
const DefaultListLimit = 100

// NormalizeLimit clamps limit to (0, max]; zero or negative uses DefaultListLimit.
func NormalizeLimit(limit, max int) int {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

// GetOrCreate returns the existing entity or saves and returns the one built by create. created
// reports which branch ran. Calling it again with the same key never creates a second entity.
func GetOrCreate[T any](
	ctx context.Context,
	get func(context.Context) (*T, error),
	create func() *T,
	save func(context.Context, *T) error,
) (entity *T, created bool, err error) {
	existing, err := get(ctx)
	if err == nil {
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}
	entity = create()
	if err := save(ctx, entity); err != nil {
		return nil, false, err
	}
	return entity, true, nil
}
