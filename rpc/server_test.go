package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"trvault/audit"
	"trvault/crypto"
	treasury "trvault/native/treasury"
	treasurystate "trvault/state/treasury"
	"trvault/storage"
)

type serverEnv struct {
	server   *Server
	router   http.Handler
	gate     *treasury.StaticGate
	bank     *treasury.BankTransport
	vault    crypto.Address
	strategy crypto.Address
	funder   crypto.Address
}

func testAddr(prefix crypto.AddressPrefix, last byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = last
	return crypto.NewAddress(prefix, raw)
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	env := &serverEnv{
		gate:     treasury.NewStaticGate(),
		bank:     treasury.NewBankTransport(),
		vault:    testAddr(crypto.TreasuryPrefix, 0x01),
		strategy: testAddr(crypto.StrategyPrefix, 0x02),
		funder:   testAddr(crypto.TreasuryPrefix, 0x03),
	}
	engine := treasury.NewEngine(env.vault)
	engine.SetState(treasurystate.NewManager(storage.NewMemDB()))
	engine.SetTransport(env.bank)
	engine.SetGate(env.gate)
	if err := engine.SetBorrowToken(treasury.TokenConfig{Token: "tusd"}, treasury.NewDebtToken()); err != nil {
		t.Fatalf("SetBorrowToken: %v", err)
	}
	if err := engine.SetStrategyCeiling(env.strategy, "tusd", uint256.MustFromDecimal("5000000000000000000")); err != nil {
		t.Fatalf("SetStrategyCeiling: %v", err)
	}
	env.bank.Fund(env.funder, "tusd", uint256.MustFromDecimal("1000000000000000000000"))
	if err := engine.DepositReserve(env.funder, "tusd", uint256.MustFromDecimal("1000000000000000000000")); err != nil {
		t.Fatalf("DepositReserve: %v", err)
	}

	journal, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	env.server = NewServer(engine, journal, nil, RateLimit{RequestsPerMinute: 6000, Burst: 100})
	env.router = env.server.Router()
	return env
}

func (env *serverEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *serverEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func TestBorrowEndpoint(t *testing.T) {
	env := newServerEnv(t)
	recipient := testAddr(crypto.TreasuryPrefix, 0x04)
	rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "5000000000000000000",
		"recipient": "`+recipient.String()+`"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp borrowResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Borrowed != "5000000000000000000" {
		t.Fatalf("unexpected borrowed %q", resp.Borrowed)
	}
	if env.bank.BalanceOf(recipient, "tusd").Dec() != "5000000000000000000" {
		t.Fatal("expected recipient funded")
	}
}

func TestBorrowCeilingBreachedMapsToConflict(t *testing.T) {
	env := newServerEnv(t)
	recipient := testAddr(crypto.TreasuryPrefix, 0x04)
	rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "5000000000000000001",
		"recipient": "`+recipient.String()+`"
	}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["available"] != "5000000000000000000" {
		t.Fatalf("unexpected available %q", resp["available"])
	}
}

func TestBorrowRejectsBadAddress(t *testing.T) {
	env := newServerEnv(t)
	rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "not-bech32",
		"token": "tusd",
		"amount": "1",
		"recipient": "also-bad"
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestBorrowPausedMapsToForbidden(t *testing.T) {
	env := newServerEnv(t)
	env.gate.SetModulePaused("treasury", true)
	recipient := testAddr(crypto.TreasuryPrefix, 0x04)
	rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "1",
		"recipient": "`+recipient.String()+`"
	}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRepayAndPositionEndpoints(t *testing.T) {
	env := newServerEnv(t)
	recipient := testAddr(crypto.TreasuryPrefix, 0x04)
	if rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "4000000000000000000",
		"recipient": "`+recipient.String()+`"
	}`); rec.Code != http.StatusOK {
		t.Fatalf("borrow: %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.post(t, "/v1/treasury/repay", `{
		"payer": "`+recipient.String()+`",
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "1000000000000000000"
	}`); rec.Code != http.StatusOK {
		t.Fatalf("repay: %d %s", rec.Code, rec.Body.String())
	}

	rec := env.post(t, "/v1/treasury/positions/get", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("position: %d %s", rec.Code, rec.Body.String())
	}
	var pos positionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if pos.Debt != "3000000000000000000" {
		t.Fatalf("unexpected debt %q", pos.Debt)
	}
	if pos.Available != "2000000000000000000" {
		t.Fatalf("unexpected available %q", pos.Available)
	}
}

func TestReserveEndpoint(t *testing.T) {
	env := newServerEnv(t)
	rec := env.get(t, "/v1/treasury/reserves/tusd")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp reserveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode reserve: %v", err)
	}
	if resp.Local != "1000000000000000000000" {
		t.Fatalf("unexpected local %q", resp.Local)
	}
}

func TestHistoryEndpointRecordsOperations(t *testing.T) {
	env := newServerEnv(t)
	recipient := testAddr(crypto.TreasuryPrefix, 0x04)
	if rec := env.post(t, "/v1/treasury/borrow", `{
		"strategy": "`+env.strategy.String()+`",
		"token": "tusd",
		"amount": "1000000000000000000",
		"recipient": "`+recipient.String()+`"
	}`); rec.Code != http.StatusOK {
		t.Fatalf("borrow: %d", rec.Code)
	}

	rec := env.get(t, "/v1/treasury/history?strategy="+env.strategy.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	var entries []audit.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 1 || entries[0].Operation != "borrow" || entries[0].Outcome != "ok" {
		t.Fatalf("unexpected history %+v", entries)
	}
}

func TestRateLimitRejectsBursts(t *testing.T) {
	env := newServerEnv(t)
	env.server.limiter = NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	env.router = env.server.Router()

	body := `{"strategy": "` + env.strategy.String() + `", "token": "tusd"}`
	if rec := env.post(t, "/v1/treasury/positions/get", body); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	if rec := env.post(t, "/v1/treasury/positions/get", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
