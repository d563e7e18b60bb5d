package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclear/auctiond/internal/config"
	"github.com/openclear/auctiond/internal/core/amount"
	"github.com/openclear/auctiond/internal/core/auction"
	"github.com/openclear/auctiond/internal/core/auction/instant"
	"github.com/openclear/auctiond/internal/core/auction/uniformprice"
	"github.com/openclear/auctiond/internal/core/fees"
	"github.com/openclear/auctiond/internal/core/house"
	"github.com/openclear/auctiond/internal/core/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	srv   *httptest.Server
	bank  *token.Bank
	eng   *house.Engine
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	bank := token.NewBank()

	reg := auction.NewRegistry()
	require.NoError(t, reg.Install(uniformprice.New()))
	require.NoError(t, reg.Install(instant.New()))

	ledger := fees.NewLedger("governance")
	for _, kc := range []auction.Keycode{uniformprice.KeycodeUP, instant.KeycodeIN} {
		require.NoError(t, ledger.SetFee("governance", kc, fees.Protocol, 1000))
		require.NoError(t, ledger.SetFee("governance", kc, fees.Referrer, 500))
		require.NoError(t, ledger.SetFee("governance", kc, fees.MaxCurator, 5000))
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	eng := house.New(
		house.Config{HouseAddress: "house", Governance: "governance"},
		reg, ledger, bank,
		house.WithClock(clock.Now),
		house.WithLogger(log),
	)

	s, err := New(config.ServerConfig{
		ListenAddress: "127.0.0.1:0",
		ViewCacheSize: 16,
	}, eng, log)
	require.NoError(t, err)
	eng.SetEvents(s.Sink())

	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, bank: bank, eng: eng, clock: clock}
}

func (e *testEnv) rpc(t *testing.T, method string, params any) (int, map[string]any) {
	t.Helper()

	body, err := json.Marshal(map[string]any{"method": method, "params": params})
	require.NoError(t, err)

	resp, err := http.Post(e.srv.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		RequestID string         `json:"request_id"`
		Result    map[string]any `json:"result"`
		Error     *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.RequestID)
	if out.Error != nil {
		return resp.StatusCode, map[string]any{"kind": out.Error.Kind, "message": out.Error.Message}
	}
	return resp.StatusCode, out.Result
}

func (e *testEnv) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) createLot(t *testing.T, capacity uint64) uint64 {
	t.Helper()

	e.bank.Mint("BASE", "alice", amount.New(capacity))
	status, result := e.rpc(t, "create_lot", map[string]any{
		"seller":         "alice",
		"referrer":       "ref",
		"base_token":     "BASE",
		"quote_token":    "QUOTE",
		"base_decimals":  6,
		"quote_decimals": 6,
		"auction_type":   "UPBA",
		"capacity":       fmt.Sprintf("%d", capacity),
		"conclusion":     e.clock.Now().Add(time.Hour).Format(time.RFC3339),
		"prefund":        true,
		"price":          2_000_000_000_000_000_000,
	})
	require.Equal(t, http.StatusOK, status)
	return uint64(result["lot_id"].(float64))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuctionFlowOverRPC(t *testing.T) {
	e := newTestEnv(t)
	lotID := e.createLot(t, 2_000_000)

	e.bank.Mint("QUOTE", "bob", amount.New(4_000_000))
	status, result := e.rpc(t, "place_bid", map[string]any{
		"bidder": "bob",
		"lot_id": lotID,
		"amount": "4000000",
	})
	require.Equal(t, http.StatusOK, status)
	bidID := uint64(result["bid_id"].(float64))

	e.clock.Advance(2 * time.Hour)
	status, result = e.rpc(t, "settle", map[string]any{"lot_id": lotID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, result["settled"])
	assert.Equal(t, "4000000", result["total_in"])
	assert.Equal(t, "2000000", result["total_out"])
	assert.Equal(t, "40000", result["protocol_fee"])
	assert.Equal(t, "3940000", result["seller_net"])

	status, result = e.rpc(t, "claim_bids", map[string]any{
		"caller":  "bob",
		"lot_id":  lotID,
		"bid_ids": []uint64{bidID},
	})
	require.Equal(t, http.StatusOK, status)
	outcomes := result["outcomes"].([]any)
	require.Len(t, outcomes, 1)
	first := outcomes[0].(map[string]any)
	assert.Equal(t, true, first["filled"])
	assert.Equal(t, "2000000", first["amount"])

	status, result = e.rpc(t, "claim_rewards", map[string]any{
		"caller": "governance",
		"token":  "QUOTE",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "40000", result["claimed"])

	status, body := e.get(t, "/rewards/ref/QUOTE")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "20000", body["balance"])
}

func TestLotViewAndCacheInvalidation(t *testing.T) {
	e := newTestEnv(t)
	lotID := e.createLot(t, 2_000_000)

	status, body := e.get(t, fmt.Sprintf("/lots/%d", lotID))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "created", body["status"])
	assert.Equal(t, "2000000", body["capacity"])

	// The cancel event must evict the cached rendering.
	status, _ = e.rpc(t, "cancel_lot", map[string]any{"caller": "alice", "lot_id": lotID})
	require.Equal(t, http.StatusOK, status)

	status, body = e.get(t, fmt.Sprintf("/lots/%d", lotID))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["status"])
}

func TestBidView(t *testing.T) {
	e := newTestEnv(t)
	lotID := e.createLot(t, 2_000_000)
	e.bank.Mint("QUOTE", "bob", amount.New(1_000_000))
	status, result := e.rpc(t, "place_bid", map[string]any{
		"bidder": "bob", "lot_id": lotID, "amount": "1000000",
	})
	require.Equal(t, http.StatusOK, status)
	bidID := uint64(result["bid_id"].(float64))

	status, body := e.get(t, fmt.Sprintf("/lots/%d/bids/%d", lotID, bidID))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bob", body["bidder"])
	assert.Equal(t, "1000000", body["amount"])
	assert.Equal(t, "unclaimed", body["status"])
}

func TestLotsIndex(t *testing.T) {
	e := newTestEnv(t)
	e.createLot(t, 1_000_000)
	e.createLot(t, 1_000_000)

	status, body := e.get(t, "/lots")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["lot_ids"].([]any), 2)
}

func TestErrorStatusMapping(t *testing.T) {
	e := newTestEnv(t)
	lotID := e.createLot(t, 2_000_000)

	// Unknown lot: 404.
	status, body := e.get(t, "/lots/99")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "does not exist")

	// Settle before conclusion: 409 conflict.
	status, result := e.rpc(t, "settle", map[string]any{"lot_id": lotID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "InvalidState", result["kind"])

	// Cancel by a stranger: 403.
	status, result = e.rpc(t, "cancel_lot", map[string]any{"caller": "mallory", "lot_id": lotID})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotPermitted", result["kind"])

	// Malformed amount: 400.
	status, _ = e.rpc(t, "place_bid", map[string]any{"bidder": "bob", "lot_id": lotID, "amount": "bogus"})
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown method: 400.
	status, _ = e.rpc(t, "no_such_method", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPurchaseOverRPC(t *testing.T) {
	e := newTestEnv(t)

	e.bank.Mint("BASE", "alice", amount.New(1_000_000))
	status, result := e.rpc(t, "create_lot", map[string]any{
		"seller":         "alice",
		"base_token":     "BASE",
		"quote_token":    "QUOTE",
		"base_decimals":  6,
		"quote_decimals": 6,
		"auction_type":   "INST",
		"capacity":       "1000000",
		"conclusion":     e.clock.Now().Add(time.Hour).Format(time.RFC3339),
		"prefund":        true,
		"price":          2_000_000_000_000_000_000,
	})
	require.Equal(t, http.StatusOK, status)
	lotID := uint64(result["lot_id"].(float64))

	e.bank.Mint("QUOTE", "dave", amount.New(1_000_000))
	status, result = e.rpc(t, "purchase", map[string]any{
		"buyer":  "dave",
		"lot_id": lotID,
		"amount": "1000000",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1000000", result["paid"])
	assert.Equal(t, "495000", result["payout"])
}
