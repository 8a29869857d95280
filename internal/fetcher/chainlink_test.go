package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainlinkMissingConfig(t *testing.T) {
	feed := NewChainlink(ChainlinkOptions{}, noopLogger())
	_, err := feed.FetchPrice(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)

	feed = NewChainlink(ChainlinkOptions{RPCURL: "http://localhost", FeedAddress: "not-an-address"}, noopLogger())
	_, err = feed.FetchPrice(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestChainlinkFetchPrice(t *testing.T) {
	decimalsOut, err := aggregatorV3ABI.Methods["decimals"].Outputs.Pack(uint8(8))
	require.NoError(t, err)
	roundOut, err := aggregatorV3ABI.Methods["latestRoundData"].Outputs.Pack(
		big.NewInt(110680464442257320),
		big.NewInt(6_512_345_000_000),
		big.NewInt(1_700_000_000),
		big.NewInt(1_700_000_060),
		big.NewInt(110680464442257320),
	)
	require.NoError(t, err)

	decimalsID := aggregatorV3ABI.Methods["decimals"].ID
	roundID := aggregatorV3ABI.Methods["latestRoundData"].ID
	decimalsCalls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method != "eth_call" || len(req.Params) == 0 {
			t.Errorf("unexpected rpc method %s", req.Method)
			return
		}

		var call struct {
			Data  hexutil.Bytes `json:"data"`
			Input hexutil.Bytes `json:"input"`
		}
		_ = json.Unmarshal(req.Params[0], &call)
		data := []byte(call.Input)
		if len(data) == 0 {
			data = call.Data
		}

		var out []byte
		switch {
		case bytes.HasPrefix(data, decimalsID):
			decimalsCalls++
			out = decimalsOut
		case bytes.HasPrefix(data, roundID):
			out = roundOut
		default:
			t.Errorf("unexpected call data %x", data)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  hexutil.Encode(out),
		})
	}))
	defer srv.Close()

	feed := NewChainlink(ChainlinkOptions{RPCURL: srv.URL, Timeout: time.Second}, noopLogger())

	for i := 0; i < 2; i++ {
		price, err := feed.FetchPrice(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 65123.45, price, 1e-9)
	}
	assert.Equal(t, 1, decimalsCalls, "decimals should be cached after the first read")
}
