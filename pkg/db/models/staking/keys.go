package staking

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// EraValidatorID keys both EraValidator and ValidatorPayout rows: hash(era, validator).
func EraValidatorID(era uint32, validator string) string {
	return hashKey(fmt.Sprintf("%d%s", era, validator))
}

// PayoutID is the ValidatorPayout key. It equals EraValidatorID so the fallback claim path can
// find the exposure snapshot with the same key.
func PayoutID(era uint32, validator string) string {
	return EraValidatorID(era, validator)
}

// NominatorValidatorID keys the relationship fact hash(era, nominator, validator).
func NominatorValidatorID(era uint32, nominator, validator string) string {
	return hashKey(fmt.Sprintf("%d%s%s", era, nominator, validator))
}

// SessionID and EraID are the decimal indexes.
func SessionID(index uint32) string { return strconv.FormatUint(uint64(index), 10) }

func EraID(index uint32) string { return strconv.FormatUint(uint64(index), 10) }

func hashKey(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
