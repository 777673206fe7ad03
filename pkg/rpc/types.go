package rpc

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

// IndividualExposure is one nominator's stake behind a validator.
type IndividualExposure struct {
	Who   string
	Value *uint256.Int
}

// ValidatorExposure is one staking.erasStakers entry.
type ValidatorExposure struct {
	Validator string
	Total     *uint256.Int
	Own       *uint256.Int
	Others    []IndividualExposure
}

// IndividualPoints is one validator's share of an era's reward points.
type IndividualPoints struct {
	Account string
	Points  uint32
}

// RewardPoints is staking.erasRewardPoints. Individual is sorted by account.
type RewardPoints struct {
	Total      uint32
	Individual []IndividualPoints
}

// storageValue is the sidecar envelope for a single storage item.
type storageValue struct {
	At struct {
		Hash   string `json:"hash"`
		Height string `json:"height"`
	} `json:"at"`
	Value json.RawMessage `json:"value"`
}

func (v storageValue) isNone() bool {
	return len(v.Value) == 0 || string(v.Value) == "null"
}

type storageEntries struct {
	Entries []struct {
		Keys  []json.RawMessage `json:"keys"`
		Value json.RawMessage   `json:"value"`
	} `json:"entries"`
}

type rpcExposure struct {
	Total  json.RawMessage `json:"total"`
	Own    json.RawMessage `json:"own"`
	Others []struct {
		Who   string          `json:"who"`
		Value json.RawMessage `json:"value"`
	} `json:"others"`
}

func (e rpcExposure) toExposure(validator string) (ValidatorExposure, error) {
	total, err := ledger.ParseBalance(e.Total)
	if err != nil {
		return ValidatorExposure{}, fmt.Errorf("exposure %s total: %w", validator, err)
	}
	own, err := ledger.ParseBalance(e.Own)
	if err != nil {
		return ValidatorExposure{}, fmt.Errorf("exposure %s own: %w", validator, err)
	}
	out := ValidatorExposure{Validator: validator, Total: total, Own: own}
	for _, o := range e.Others {
		value, err := ledger.ParseBalance(o.Value)
		if err != nil {
			return ValidatorExposure{}, fmt.Errorf("exposure %s nominator %s: %w", validator, o.Who, err)
		}
		out.Others = append(out.Others, IndividualExposure{Who: o.Who, Value: value})
	}
	return out, nil
}

type rpcRewardPoints struct {
	Total      json.RawMessage            `json:"total"`
	Individual map[string]json.RawMessage `json:"individual"`
}

func (p rpcRewardPoints) toRewardPoints() (*RewardPoints, error) {
	out := &RewardPoints{}
	if len(p.Total) > 0 {
		total, err := ledger.ParseUint(p.Total)
		if err != nil {
			return nil, fmt.Errorf("reward points total: %w", err)
		}
		out.Total = uint32(total)
	}
	for account, raw := range p.Individual {
		points, err := ledger.ParseUint(raw)
		if err != nil {
			return nil, fmt.Errorf("reward points %s: %w", account, err)
		}
		out.Individual = append(out.Individual, IndividualPoints{Account: account, Points: uint32(points)})
	}
	sort.Slice(out.Individual, func(i, j int) bool { return out.Individual[i].Account < out.Individual[j].Account })
	return out, nil
}

type rpcActiveEra struct {
	Index json.RawMessage `json:"index"`
}

type rpcAccountInfo struct {
	Nonce json.RawMessage `json:"nonce"`
}

type rpcHeader struct {
	Number json.RawMessage `json:"number"`
}

type feeEstimateRequest struct {
	Tx string `json:"tx"`
	At string `json:"at,omitempty"`
}

type feeEstimateResponse struct {
	PartialFee json.RawMessage `json:"partialFee"`
}
