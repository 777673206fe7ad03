package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func value(v any) map[string]any {
	return map[string]any{"at": map[string]any{"hash": "0xabc", "height": "10"}, "value": v}
}

func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPClient_EraQueries(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		currentEraPath: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "0xabc", r.URL.Query().Get("at"))
			writeJSON(t, w, value("812"))
		},
		activeEraPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, value(map[string]any{"index": "811", "start": "1700000000000"}))
		},
		historyDepthConstPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, value("84"))
		},
	})
	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	ctx := context.Background()

	era, ok, err := client.CurrentEra(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(812), era)

	era, ok, err = client.ActiveEra(ctx, "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint32(811), era)

	// The storage item answers 404 on newer runtimes; the constant is used instead.
	depth, err := client.HistoryDepth(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, uint32(84), depth)
}

func TestHTTPClient_NoneValues(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		activeEraPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, value(nil))
		},
		identityOfPath: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "alice", r.URL.Query().Get("keys[]"))
			writeJSON(t, w, value(nil))
		},
	})
	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})

	_, ok, err := client.ActiveEra(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = client.IdentityOf(context.Background(), "", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPClient_ErasStakersAndRewardPoints(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		erasStakersEntriesPath: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "5", r.URL.Query().Get("keys[]"))
			writeJSON(t, w, map[string]any{"entries": []any{
				map[string]any{
					"keys":  []any{"5", "validator-1"},
					"value": map[string]any{"total": "300", "own": "100", "others": []any{map[string]any{"who": "nom-1", "value": "200"}}},
				},
			}})
		},
		erasRewardPointsPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, value(map[string]any{"total": 100, "individual": map[string]any{"b": 63, "a": "37"}}))
		},
	})
	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})
	ctx := context.Background()

	exposures, err := client.ErasStakers(ctx, "", 5)
	require.NoError(t, err)
	require.Len(t, exposures, 1)
	assert.Equal(t, "validator-1", exposures[0].Validator)
	assert.Equal(t, uint64(300), exposures[0].Total.Uint64())
	require.Len(t, exposures[0].Others, 1)
	assert.Equal(t, "nom-1", exposures[0].Others[0].Who)

	points, err := client.ErasRewardPoints(ctx, "", 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), points.Total)
	assert.Equal(t, []IndividualPoints{{Account: "a", Points: 37}, {Account: "b", Points: 63}}, points.Individual)
}

func TestHTTPClient_FeeAndNonce(t *testing.T) {
	server := newTestServer(t, map[string]http.HandlerFunc{
		feeEstimatePath: func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			var req feeEstimateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "0x1234", req.Tx)
			assert.Equal(t, "0xblock", req.At)
			writeJSON(t, w, map[string]any{"partialFee": "15600000"})
		},
		"/accounts/alice/balance-info": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"nonce": "7"})
		},
	})
	client := NewHTTPWithOpts(Opts{Endpoints: []string{server.URL}})

	fee, err := client.QueryFeeInfo(context.Background(), "0x1234", "0xblock")
	require.NoError(t, err)
	assert.Equal(t, "15600000", fee.Dec())

	nonce, err := client.AccountNonce(context.Background(), "", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), nonce)
}

func TestHTTPClient_FailoverAndBreaker(t *testing.T) {
	var badHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := newTestServer(t, map[string]http.HandlerFunc{
		headPath: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"number": "1234"})
		},
	})

	client := NewHTTPWithOpts(Opts{
		Endpoints:       []string{bad.URL, good.URL},
		BreakerFailures: 2,
		BreakerCooldown: time.Minute,
	})
	for i := 0; i < 4; i++ {
		head, err := client.ChainHead(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(1234), head)
	}
	// The breaker opens after two failures; later calls skip the bad endpoint.
	assert.Equal(t, int32(2), badHits.Load())
}

func TestHTTPClient_ClientErrorsAreNotRetried(t *testing.T) {
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})
	a := httptest.NewServer(handler)
	defer a.Close()
	b := httptest.NewServer(handler)
	defer b.Close()

	client := NewHTTPWithOpts(Opts{Endpoints: []string{a.URL, b.URL}})
	_, err := client.ChainHead(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, int32(1), hits.Load())
}

func TestHTTPClient_NoEndpoints(t *testing.T) {
	_, err := NewHTTPWithOpts(Opts{}).ChainHead(context.Background())
	require.ErrorIs(t, err, ErrNoEndpoints)
}
