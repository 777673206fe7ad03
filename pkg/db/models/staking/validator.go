package staking

import (
	"github.com/holiman/uint256"
)

// Exposure is one nominator's contribution to a validator's stake.
type Exposure struct {
	Who   string       `json:"who"`
	Value *uint256.Int `json:"value"`
}

// EraValidator snapshots a validator's exposure for an era. Written once per era transition.
type EraValidator struct {
	ID        string       `json:"id"`
	Era       uint32       `json:"era"`
	Validator string       `json:"validator"`
	Total     *uint256.Int `json:"total"`
	Own       *uint256.Int `json:"own"`
	Others    []Exposure   `json:"others"`
}

// NominatorValidator records that a nominator backed a validator in an era.
type NominatorValidator struct {
	ID        string `json:"id"`
	Era       uint32 `json:"era"`
	Nominator string `json:"nominator"`
	Validator string `json:"validator"`
}

// NewEraValidator builds the snapshot row with its derived key.
func NewEraValidator(era uint32, validator string, total, own *uint256.Int, others []Exposure) *EraValidator {
	return &EraValidator{
		ID:        EraValidatorID(era, validator),
		Era:       era,
		Validator: validator,
		Total:     orZero(total),
		Own:       orZero(own),
		Others:    others,
	}
}

// NewNominatorValidator builds the relationship row with its derived key.
func NewNominatorValidator(era uint32, nominator, validator string) *NominatorValidator {
	return &NominatorValidator{
		ID:        NominatorValidatorID(era, nominator, validator),
		Era:       era,
		Nominator: nominator,
		Validator: validator,
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
