package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"nftrental/core/state"
	"nftrental/crypto"
	"nftrental/native/rental"
	"nftrental/storage"
)

const testToken = "test-token"

type testEnv struct {
	server *httptest.Server
	engine *rental.Engine
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	engine := rental.NewEngine()
	engine.SetState(manager)
	var vault [20]byte
	vault[19] = 0xEE
	engine.SetVault(vault)
	env := &testEnv{engine: engine, now: 1_700_000_000}
	engine.SetNowFunc(func() int64 { return env.now })
	srv := NewServer(engine, testToken, nil)
	env.server = httptest.NewServer(srv.Handler())
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) call(t *testing.T, method string, params interface{}, authed bool) (json.RawMessage, *RPCError) {
	t.Helper()
	reqBody := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = []interface{}{params}
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, env.server.URL, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if authed {
		httpReq.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp.Result, rpcResp.Error
}

func newTestAddr(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.NewAddress(raw).String()
}

func TestMutatingMethodRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	addr := newTestAddr(0x11)
	_, rpcErr := env.call(t, "rental_register", registerParams{Caller: addr, Address: addr}, false)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", rpcErr)
	}
}

func TestRegisterInvalidBech32(t *testing.T) {
	env := newTestEnv(t)
	_, rpcErr := env.call(t, "rental_register", registerParams{Caller: "invalid", Address: "invalid"}, true)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected invalid_params, got %+v", rpcErr)
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, rpcErr := env.call(t, "rental_noSuchMethod", nil, true)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound {
		t.Fatalf("expected method_not_found, got %+v", rpcErr)
	}
}

func TestLendRequiresRegistration(t *testing.T) {
	env := newTestEnv(t)
	lender := newTestAddr(0x11)
	_, rpcErr := env.call(t, "rental_addNFTToLend", addNFTToLendParams{
		Caller: lender, NftKey: "k", Owner: lender, Lender: lender,
		DueDate: env.now + 1000, DailyRent: "1", Collateral: "2",
	}, true)
	if rpcErr == nil || rpcErr.Code != codeNotFound {
		t.Fatalf("expected not_found, got %+v", rpcErr)
	}
}

func TestDueDateOutsideEpochRange(t *testing.T) {
	env := newTestEnv(t)
	lender := newTestAddr(0x11)
	_, rpcErr := env.call(t, "rental_addNFTToLend", addNFTToLendParams{
		Caller: lender, NftKey: "k", Owner: lender, Lender: lender,
		DueDate: maxEpochSeconds + 1, DailyRent: "1", Collateral: "2",
	}, true)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected invalid_params, got %+v", rpcErr)
	}
}

func TestRentalLifecycleOverRPC(t *testing.T) {
	env := newTestEnv(t)
	lender := newTestAddr(0x11)
	borrower := newTestAddr(0x22)

	for _, addr := range []string{lender, borrower} {
		if _, rpcErr := env.call(t, "rental_register", registerParams{Caller: addr, Address: addr}, true); rpcErr != nil {
			t.Fatalf("register %s: %+v", addr, rpcErr)
		}
	}
	if _, rpcErr := env.call(t, "rental_mint", mintParams{Address: borrower, Amount: "10000005000000"}, true); rpcErr != nil {
		t.Fatalf("mint: %+v", rpcErr)
	}
	if _, rpcErr := env.call(t, "rental_addNFTToLend", addNFTToLendParams{
		Caller:     lender,
		NftKey:     "boredape#42",
		Owner:      lender,
		Lender:     lender,
		NftAddress: "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984",
		NftID:      42,
		Name:       "Bored Ape #42",
		DueDate:    env.now + 30*86400,
		DailyRent:  "1000000",
		Collateral: "10000000000000",
	}, true); rpcErr != nil {
		t.Fatalf("addNFTToLend: %+v", rpcErr)
	}

	result, rpcErr := env.call(t, "rental_getAvailableNfts", nil, false)
	if rpcErr != nil {
		t.Fatalf("getAvailableNfts: %+v", rpcErr)
	}
	var keys []string
	if err := json.Unmarshal(result, &keys); err != nil || len(keys) != 1 || keys[0] != "boredape#42" {
		t.Fatalf("available keys = %s, err=%v", result, err)
	}

	if _, rpcErr := env.call(t, "rental_rentNft", rentNftParams{
		Caller:          borrower,
		NftKey:          "boredape#42",
		Borrower:        borrower,
		NumberOfDays:    5,
		RentalStartTime: env.now - 10,
		Value:           "10000005000000",
	}, true); rpcErr != nil {
		t.Fatalf("rentNft: %+v", rpcErr)
	}

	result, rpcErr = env.call(t, "rental_escrowBalance", nil, false)
	if rpcErr != nil {
		t.Fatalf("escrowBalance: %+v", rpcErr)
	}
	var escrow balanceJSON
	if err := json.Unmarshal(result, &escrow); err != nil || escrow.Balance != "10000000000000" {
		t.Fatalf("escrow = %s, err=%v", result, err)
	}

	result, rpcErr = env.call(t, "rental_getLendedNft", lendedQueryParams{Lender: lender, NftKey: "boredape#42"}, false)
	if rpcErr != nil {
		t.Fatalf("getLendedNft: %+v", rpcErr)
	}
	var ledger listingJSON
	if err := json.Unmarshal(result, &ledger); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if ledger.Borrower == nil || *ledger.Borrower != borrower {
		t.Fatalf("ledger borrower = %v, want %s", ledger.Borrower, borrower)
	}

	result, rpcErr = env.call(t, "rental_getRentedNft", rentedQueryParams{Borrower: borrower, NftKey: "boredape#42"}, false)
	if rpcErr != nil {
		t.Fatalf("getRentedNft: %+v", rpcErr)
	}
	var rented rentalJSON
	if err := json.Unmarshal(result, &rented); err != nil || rented.NumberOfDays != 5 {
		t.Fatalf("rented = %s, err=%v", result, err)
	}

	if _, rpcErr := env.call(t, "rental_returnNFT", keyedParams{Caller: borrower, NftKey: "boredape#42"}, true); rpcErr != nil {
		t.Fatalf("returnNFT: %+v", rpcErr)
	}
	result, rpcErr = env.call(t, "rental_getBalance", addressParams{Address: borrower}, false)
	if rpcErr != nil {
		t.Fatalf("getBalance: %+v", rpcErr)
	}
	var balance balanceJSON
	if err := json.Unmarshal(result, &balance); err != nil || balance.Balance != "10000000000000" {
		t.Fatalf("borrower balance = %s, err=%v", result, err)
	}
}

func TestSelfRentalConflictOverRPC(t *testing.T) {
	env := newTestEnv(t)
	lender := newTestAddr(0x11)
	if _, rpcErr := env.call(t, "rental_register", registerParams{Caller: lender, Address: lender}, true); rpcErr != nil {
		t.Fatalf("register: %+v", rpcErr)
	}
	if _, rpcErr := env.call(t, "rental_mint", mintParams{Address: lender, Amount: "99999999999999"}, true); rpcErr != nil {
		t.Fatalf("mint: %+v", rpcErr)
	}
	if _, rpcErr := env.call(t, "rental_addNFTToLend", addNFTToLendParams{
		Caller: lender, NftKey: "k", Owner: lender, Lender: lender,
		DueDate: env.now + 30*86400, DailyRent: "1000000", Collateral: "10000000000000",
	}, true); rpcErr != nil {
		t.Fatalf("addNFTToLend: %+v", rpcErr)
	}
	_, rpcErr := env.call(t, "rental_rentNft", rentNftParams{
		Caller: lender, NftKey: "k", Borrower: lender,
		NumberOfDays: 5, RentalStartTime: env.now - 10, Value: "10000005000000",
	}, true)
	if rpcErr == nil || rpcErr.Code != codeConflict {
		t.Fatalf("expected conflict, got %+v", rpcErr)
	}
}

func TestLendedIndexOutOfRangeOverRPC(t *testing.T) {
	env := newTestEnv(t)
	lender := newTestAddr(0x11)
	if _, rpcErr := env.call(t, "rental_register", registerParams{Caller: lender, Address: lender}, true); rpcErr != nil {
		t.Fatalf("register: %+v", rpcErr)
	}
	index := uint64(3)
	_, rpcErr := env.call(t, "rental_getLendedNft", lendedQueryParams{Lender: lender, Index: &index}, false)
	if rpcErr == nil || rpcErr.Code != codeInvalidParams {
		t.Fatalf("expected invalid_params, got %+v", rpcErr)
	}
}

func TestRequestTooLarge(t *testing.T) {
	env := newTestEnv(t)
	oversized := bytes.Repeat([]byte("a"), maxRequestBytes+2)
	resp, err := http.Post(env.server.URL, "application/json", bytes.NewReader(oversized))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestWrongTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	addr := newTestAddr(0x11)
	raw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  "rental_register",
		"params":  []interface{}{registerParams{Caller: addr, Address: addr}},
	})
	httpReq, _ := http.NewRequest(http.MethodPost, env.server.URL, bytes.NewReader(raw))
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s-wrong", testToken))
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
