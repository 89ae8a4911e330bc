package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"epochvault/core/auth"
	"epochvault/core/host"
	"epochvault/crypto"
	"epochvault/indexer"
	"epochvault/native/vault"
)

type fakeBackend struct {
	invoked  []*auth.Invocation
	invokeFn func(inv *auth.Invocation) (*host.Receipt, error)
	offerErr error
}

func (f *fakeBackend) ChainID() uint64 { return 7 }

func (f *fakeBackend) Invoke(_ context.Context, inv *auth.Invocation) (*host.Receipt, error) {
	f.invoked = append(f.invoked, inv)
	if f.invokeFn != nil {
		return f.invokeFn(inv)
	}
	return &host.Receipt{Digest: "0x01", Method: inv.Method, OK: true}, nil
}

func (f *fakeBackend) Offer() (*host.OfferView, error) {
	if f.offerErr != nil {
		return nil, f.offerErr
	}
	return &host.OfferView{SellToken: "SHARE", BuyToken: "USDC", Price: 2_000_000}, nil
}

func (f *fakeBackend) Request(addr [20]byte) (*host.RequestView, error) {
	return &host.RequestView{Address: crypto.FormatAddress(addr), SharesAmount: "10", EpochID: 1, Status: "pending"}, nil
}

func (f *fakeBackend) Requests() ([]*host.RequestView, error) {
	return []*host.RequestView{{SharesAmount: "10", EpochID: 1, Status: "claimable"}}, nil
}

func (f *fakeBackend) Epoch() (*host.EpochView, error) {
	return &host.EpochView{EpochID: 3, TotalRedeem: "42"}, nil
}

func (f *fakeBackend) RedeemRate(epochID uint32) (*host.RateView, error) {
	return &host.RateView{EpochID: epochID, Rate: 5_000_000, Settled: epochID < 3}, nil
}

func (f *fakeBackend) Balance(token string, addr [20]byte) (*host.BalanceView, error) {
	return &host.BalanceView{Token: token, Address: crypto.FormatAddress(addr), Balance: "100"}, nil
}

func (f *fakeBackend) Allowance(token string, owner, spender [20]byte) (*host.AllowanceView, error) {
	return &host.AllowanceView{Token: token, Owner: crypto.FormatAddress(owner), Spender: crypto.FormatAddress(spender), Allowance: "5"}, nil
}

type fakeArchive struct {
	filters []indexer.Filter
}

func (f *fakeArchive) ListEvents(_ context.Context, filter indexer.Filter) ([]indexer.Event, error) {
	f.filters = append(f.filters, filter)
	return []indexer.Event{{ID: 1, Digest: "0x01", Type: "vault.redeem_requested"}}, nil
}

func (f *fakeArchive) Invocation(_ context.Context, digest string) (*indexer.InvocationRecord, error) {
	if digest != "0x01" {
		return nil, indexer.ErrNotFound
	}
	return &indexer.InvocationRecord{Digest: digest, Method: "vault.deposit", OK: true}, nil
}

type rawResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func call(t *testing.T, handler http.Handler, method string, token string, params ...interface{}) (int, rawResponse) {
	t.Helper()
	encoded := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		encoded = append(encoded, raw)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: encoded, ID: 1})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp rawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func testAccount(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestServer(backend *fakeBackend, archive Archive) http.Handler {
	return NewServer(backend, archive, nil, Config{AuthToken: "secret"}).Handler()
}

func TestInvokeRequiresBearerToken(t *testing.T) {
	backend := &fakeBackend{}
	handler := newTestServer(backend, nil)
	inv := auth.Invocation{ChainID: 7, Method: "vault.settle_epoch", Args: json.RawMessage(`{}`)}

	status, resp := call(t, handler, "vault_invoke", "", inv)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
	require.Empty(t, backend.invoked)

	status, resp = call(t, handler, "vault_invoke", "secret", inv)
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, resp.Error)
	var receipt host.Receipt
	require.NoError(t, json.Unmarshal(resp.Result, &receipt))
	require.True(t, receipt.OK)
	require.Equal(t, "vault.settle_epoch", receipt.Method)
	require.Len(t, backend.invoked, 1)
}

func TestInvokeMapsHostErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{fmt.Errorf("%w: 0xab", host.ErrReplay), http.StatusConflict, codeDuplicateTx},
		{fmt.Errorf("%w: amount", host.ErrInvalidArgs), http.StatusBadRequest, codeInvalidParams},
		{host.ErrNoSigners, http.StatusBadRequest, codeInvalidParams},
		{auth.ErrMalformedSig, http.StatusBadRequest, codeInvalidParams},
		{fmt.Errorf("disk full"), http.StatusInternalServerError, codeServerError},
	}
	for _, tc := range cases {
		backend := &fakeBackend{invokeFn: func(*auth.Invocation) (*host.Receipt, error) { return nil, tc.err }}
		status, resp := call(t, newTestServer(backend, nil), "vault_invoke", "secret",
			auth.Invocation{ChainID: 7, Method: "vault.deposit"})
		require.Equal(t, tc.status, status, tc.err.Error())
		require.NotNil(t, resp.Error)
		require.Equal(t, tc.code, resp.Error.Code, tc.err.Error())
	}
}

func TestQueriesDoNotRequireToken(t *testing.T) {
	handler := newTestServer(&fakeBackend{}, nil)
	alice, bob := testAccount(0x01), testAccount(0x02)

	status, resp := call(t, handler, "vault_getRequest", "", crypto.FormatAddress(alice))
	require.Equal(t, http.StatusOK, status)
	var request host.RequestView
	require.NoError(t, json.Unmarshal(resp.Result, &request))
	require.Equal(t, "10", request.SharesAmount)

	_, resp = call(t, handler, "vault_getRedeemRate", "", 2)
	var rate host.RateView
	require.NoError(t, json.Unmarshal(resp.Result, &rate))
	require.True(t, rate.Settled)
	require.Equal(t, uint32(5_000_000), rate.Rate)

	_, resp = call(t, handler, "vault_getRedeemRate", "", map[string]uint32{"epoch": 4})
	require.NoError(t, json.Unmarshal(resp.Result, &rate))
	require.False(t, rate.Settled)

	_, resp = call(t, handler, "token_getAllowance", "", "USDC", crypto.FormatAddress(alice), crypto.FormatAddress(bob))
	var allowance host.AllowanceView
	require.NoError(t, json.Unmarshal(resp.Result, &allowance))
	require.Equal(t, "5", allowance.Allowance)

	_, resp = call(t, handler, "vault_listRequests", "")
	var requests []host.RequestView
	require.NoError(t, json.Unmarshal(resp.Result, &requests))
	require.Len(t, requests, 1)
	require.Equal(t, "claimable", requests[0].Status)

	_, resp = call(t, handler, "vault_chainId", "")
	require.JSONEq(t, `"7"`, string(resp.Result))
}

func TestQueryParameterValidation(t *testing.T) {
	handler := newTestServer(&fakeBackend{}, nil)

	status, resp := call(t, handler, "vault_getRequest", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = call(t, handler, "token_getBalance", "", "USDC", "not-an-address")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = call(t, handler, "vault_getRedeemRate", "", "soon")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)

	status, resp = call(t, handler, "vault_nope", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestVaultErrorCarriesStableCode(t *testing.T) {
	handler := newTestServer(&fakeBackend{offerErr: vault.ErrOfferNotCreated}, nil)

	status, resp := call(t, handler, "vault_getOffer", "")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeVaultError, resp.Error.Code)
	data, err := json.Marshal(resp.Error.Data)
	require.NoError(t, err)
	require.JSONEq(t, `{"code":2,"name":"OfferNotCreated"}`, string(data))
}

func TestArchiveMethods(t *testing.T) {
	handler := newTestServer(&fakeBackend{}, nil)
	status, resp := call(t, handler, "vault_listEvents", "")
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, codeServerError, resp.Error.Code)

	archive := &fakeArchive{}
	handler = newTestServer(&fakeBackend{}, archive)
	_, resp = call(t, handler, "vault_listEvents", "", EventsQuery{Type: "vault.redeem_requested", Limit: 5})
	var list []indexer.Event
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list, 1)
	require.Equal(t, indexer.Filter{Type: "vault.redeem_requested", Limit: 5}, archive.filters[0])

	status, resp = call(t, handler, "vault_getReceipt", "", "0x02")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestMalformedAndOversizedBodies(t *testing.T) {
	handler := NewServer(&fakeBackend{}, nil, nil, Config{MaxBodyBytes: 64}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	big := `{"jsonrpc":"2.0","method":"vault_getEpoch","params":["` + strings.Repeat("a", 128) + `"],"id":1}`
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big)))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	handler := NewServer(&fakeBackend{}, nil, nil, Config{RateLimitPerSecond: 0.001, RateLimitBurst: 1}).Handler()

	status, _ := call(t, handler, "vault_getEpoch", "")
	require.Equal(t, http.StatusOK, status)
	status, resp := call(t, handler, "vault_getEpoch", "")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	handler := newTestServer(&fakeBackend{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-me")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	if got := rec.Header().Get(requestIDHeader); got != "trace-me" {
		t.Fatalf("request id = %q, want trace-me", got)
	}
}
