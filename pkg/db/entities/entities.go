// Package entities names the persisted entity kinds.
//
// The names double as table names in the clickhouse and postgres stores and as the keys of the
// memory store's row counts, so a kind is spelled once:
//
//	query := fmt.Sprintf("SELECT doc FROM %s WHERE id = $1", entities.Eras.TableName())
//
//	for _, entity := range entities.All() {
//	    fmt.Println(entity, counts[entity.String()])
//	}
//
// All functions and methods in this package are safe for concurrent use.
package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Entity is a persisted kind. Use the package-level constants rather than converting strings;
// FromString validates external input.
type Entity string

const (
	Accounts            Entity = "accounts"
	Sessions            Entity = "sessions"
	Eras                Entity = "eras"
	EraValidators       Entity = "era_validators"
	NominatorValidators Entity = "nominator_validators"
	ValidatorPayouts    Entity = "validator_payouts"
	HistoryElements     Entity = "history_elements"

	// Checkpoints holds the per-chain indexing progress.
	Checkpoints Entity = "index_checkpoints"
)

// allEntities lists every kind in creation order. A constant missing here fails IsValid.
var allEntities = []Entity{
	Accounts,
	Sessions,
	Eras,
	EraValidators,
	NominatorValidators,
	ValidatorPayouts,
	HistoryElements,
	Checkpoints,
}

var entitySet map[Entity]bool

func init() {
	entitySet = make(map[Entity]bool, len(allEntities))
	for _, e := range allEntities {
		if e == "" || strings.ContainsAny(string(e), " .\"") {
			panic(fmt.Sprintf("entities: %q is not a usable table name", e))
		}
		entitySet[e] = true
	}
}

func (e Entity) String() string {
	return string(e)
}

// TableName returns the table backing this entity.
func (e Entity) TableName() string {
	return string(e)
}

// IsValid returns true if this entity is in the list of known entities.
func (e Entity) IsValid() bool {
	return entitySet[e]
}

// MarshalText implements encoding.TextMarshaler.
func (e Entity) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown names.
func (e *Entity) UnmarshalText(text []byte) error {
	entity := Entity(text)
	if !entity.IsValid() {
		return fmt.Errorf("invalid entity: %q", text)
	}
	*e = entity
	return nil
}

// FromString converts a string to an Entity and validates it.
func FromString(s string) (Entity, error) {
	entity := Entity(s)
	if !entity.IsValid() {
		return "", fmt.Errorf("unknown entity %q, valid entities: %s", s, validEntitiesString())
	}
	return entity, nil
}

// All returns a copy of every entity in creation order.
func All() []Entity {
	result := make([]Entity, len(allEntities))
	copy(result, allEntities)
	return result
}

// Documents returns the entities stored as keyed documents, i.e. everything but Checkpoints.
func Documents() []Entity {
	result := make([]Entity, 0, len(allEntities)-1)
	for _, e := range allEntities {
		if e != Checkpoints {
			result = append(result, e)
		}
	}
	return result
}

// AllStrings returns all entity names as strings.
func AllStrings() []string {
	result := make([]string, len(allEntities))
	for i, e := range allEntities {
		result[i] = e.String()
	}
	return result
}

func validEntitiesString() string {
	names := AllStrings()
	sort.Strings(names)
	return strings.Join(names, ", ")
}
