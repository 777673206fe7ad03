package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/canopy-network/payoutx/pkg/ledger"
)

func storagePath(path, at string, keys ...string) string {
	q := url.Values{}
	if at != "" {
		q.Set("at", at)
	}
	for _, k := range keys {
		q.Add("keys[]", k)
	}
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func (c *HTTPClient) storage(ctx context.Context, path, at string, keys ...string) (storageValue, error) {
	var v storageValue
	err := c.doJSON(ctx, http.MethodGet, storagePath(path, at, keys...), nil, &v)
	return v, err
}

// ChainHead returns the latest finalized block number.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	var h rpcHeader
	if err := c.doJSON(ctx, http.MethodGet, headPath+"?finalized=true", nil, &h); err != nil {
		return 0, err
	}
	n, err := ledger.ParseUint(h.Number)
	if err != nil {
		return 0, fmt.Errorf("head number: %w", err)
	}
	return n, nil
}

// BlockByNumber returns the decoded block with its transactions and events.
func (c *HTTPClient) BlockByNumber(ctx context.Context, number uint64) (*ledger.Block, error) {
	var b ledger.Block
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf(blockByNumberPath, number), nil, &b); err != nil {
		return nil, err
	}
	if b.Number != number {
		return nil, fmt.Errorf("block %d: sidecar returned block %d", number, b.Number)
	}
	return &b, nil
}

func (c *HTTPClient) CurrentEra(ctx context.Context, at string) (uint32, bool, error) {
	v, err := c.storage(ctx, currentEraPath, at)
	if err != nil {
		return 0, false, err
	}
	if v.isNone() {
		return 0, false, nil
	}
	era, err := ledger.ParseUint(v.Value)
	if err != nil {
		return 0, false, fmt.Errorf("current era: %w", err)
	}
	return uint32(era), true, nil
}

func (c *HTTPClient) ActiveEra(ctx context.Context, at string) (uint32, bool, error) {
	v, err := c.storage(ctx, activeEraPath, at)
	if err != nil {
		return 0, false, err
	}
	if v.isNone() {
		return 0, false, nil
	}
	var active rpcActiveEra
	if err := json.Unmarshal(v.Value, &active); err != nil {
		return 0, false, fmt.Errorf("active era: %w", err)
	}
	era, err := ledger.ParseUint(active.Index)
	if err != nil {
		return 0, false, fmt.Errorf("active era index: %w", err)
	}
	return uint32(era), true, nil
}

// HistoryDepth reads the storage item older runtimes used and falls back to the pallet
// constant once the item is gone.
func (c *HTTPClient) HistoryDepth(ctx context.Context, at string) (uint32, error) {
	v, err := c.storage(ctx, historyDepthStoragePath, at)
	if err != nil && !IsStatus(err, http.StatusNotFound) && !IsStatus(err, http.StatusBadRequest) {
		return 0, err
	}
	if err != nil || v.isNone() {
		if v, err = c.storage(ctx, historyDepthConstPath, at); err != nil {
			return 0, err
		}
	}
	depth, err := ledger.ParseUint(v.Value)
	if err != nil {
		return 0, fmt.Errorf("history depth: %w", err)
	}
	return uint32(depth), nil
}

func (c *HTTPClient) AccountNonce(ctx context.Context, at, account string) (uint64, error) {
	path := fmt.Sprintf(accountInfoPath, url.PathEscape(account))
	if at != "" {
		path += "?at=" + url.QueryEscape(at)
	}
	var info rpcAccountInfo
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &info); err != nil {
		return 0, err
	}
	if len(info.Nonce) == 0 {
		return 0, nil
	}
	nonce, err := ledger.ParseUint(info.Nonce)
	if err != nil {
		return 0, fmt.Errorf("nonce %s: %w", account, err)
	}
	return nonce, nil
}

// IdentityOf returns the raw identity registration. A runtime without the identity pallet
// answers 404, which is treated as no identity.
func (c *HTTPClient) IdentityOf(ctx context.Context, at, account string) (json.RawMessage, bool, error) {
	v, err := c.storage(ctx, identityOfPath, at, account)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if v.isNone() {
		return nil, false, nil
	}
	return v.Value, true, nil
}

// ErasStakers lists every validator exposure for era. Entry keys are [era, validator].
func (c *HTTPClient) ErasStakers(ctx context.Context, at string, era uint32) ([]ValidatorExposure, error) {
	var entries storageEntries
	path := storagePath(erasStakersEntriesPath, at, strconv.FormatUint(uint64(era), 10))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	out := make([]ValidatorExposure, 0, len(entries.Entries))
	for i, e := range entries.Entries {
		validator, err := ledger.ArgString(e.Keys, 1)
		if err != nil {
			return nil, fmt.Errorf("erasStakers entry %d key: %w", i, err)
		}
		var raw rpcExposure
		if err := json.Unmarshal(e.Value, &raw); err != nil {
			return nil, fmt.Errorf("erasStakers entry %d: %w", i, err)
		}
		exposure, err := raw.toExposure(validator)
		if err != nil {
			return nil, err
		}
		out = append(out, exposure)
	}
	return out, nil
}

func (c *HTTPClient) ErasRewardPoints(ctx context.Context, at string, era uint32) (*RewardPoints, error) {
	v, err := c.storage(ctx, erasRewardPointsPath, at, strconv.FormatUint(uint64(era), 10))
	if err != nil {
		return nil, err
	}
	if v.isNone() {
		return &RewardPoints{}, nil
	}
	var raw rpcRewardPoints
	if err := json.Unmarshal(v.Value, &raw); err != nil {
		return nil, fmt.Errorf("reward points era %d: %w", era, err)
	}
	return raw.toRewardPoints()
}

func (c *HTTPClient) SessionValidators(ctx context.Context, at string) ([]string, error) {
	v, err := c.storage(ctx, sessionValidatorsPath, at)
	if err != nil {
		return nil, err
	}
	if v.isNone() {
		return nil, nil
	}
	var validators []string
	if err := json.Unmarshal(v.Value, &validators); err != nil {
		return nil, fmt.Errorf("session validators: %w", err)
	}
	return validators, nil
}

func (c *HTTPClient) QueryFeeInfo(ctx context.Context, txHex, blockHash string) (*uint256.Int, error) {
	var resp feeEstimateResponse
	if err := c.doJSON(ctx, http.MethodPost, feeEstimatePath, feeEstimateRequest{Tx: txHex, At: blockHash}, &resp); err != nil {
		return nil, err
	}
	if len(resp.PartialFee) == 0 {
		return new(uint256.Int), nil
	}
	fee, err := ledger.ParseBalance(resp.PartialFee)
	if err != nil {
		return nil, fmt.Errorf("partial fee: %w", err)
	}
	return fee, nil
}
