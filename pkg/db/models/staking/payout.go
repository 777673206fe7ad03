package staking

import (
	"github.com/holiman/uint256"
)

// ValidatorPayout is what a validator was owed for an era and whether it has been claimed.
// IsClaimed only ever moves from false to true.
type ValidatorPayout struct {
	ID             string       `json:"id"`
	Era            uint32       `json:"era"`
	Validator      string       `json:"validator"`
	TotalPayout    *uint256.Int `json:"totalPayout"`
	IsClaimed      bool         `json:"isClaimed"`
	ClaimerID      string       `json:"claimerId,omitempty"`
	ClaimedAtBlock *uint64      `json:"claimedAtBlock,omitempty"`
}

// NewValidatorPayout creates an unclaimed payout row.
func NewValidatorPayout(era uint32, validator string, amount *uint256.Int) *ValidatorPayout {
	return &ValidatorPayout{
		ID:          PayoutID(era, validator),
		Era:         era,
		Validator:   validator,
		TotalPayout: orZero(amount),
	}
}

// MarkClaimed records the claim. It is a no-op returning false when the payout is already
// claimed. An empty claimer is allowed for system-triggered claims.
func (p *ValidatorPayout) MarkClaimed(claimer string, block uint64) bool {
	if p.IsClaimed {
		return false
	}
	p.IsClaimed = true
	p.ClaimerID = claimer
	b := block
	p.ClaimedAtBlock = &b
	return true
}

// PayoutAmount computes floor(total / totalPoints) * points, dividing first the way the runtime
// does. ok is false when totalPoints is zero.
func PayoutAmount(total *uint256.Int, totalPoints, points uint32) (amount *uint256.Int, ok bool) {
	if totalPoints == 0 || total == nil {
		return nil, false
	}
	perPoint := new(uint256.Int).Div(total, uint256.NewInt(uint64(totalPoints)))
	return perPoint.Mul(perPoint, uint256.NewInt(uint64(points))), true
}
