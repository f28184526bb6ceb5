package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainwatch/erc20-indexer/internal/store"
)

type fakeStore struct {
	transfers    []store.Transfer
	err          error
	gotSender    *string
	gotRecipient *string
}

func (f *fakeStore) Insert(ctx context.Context, t store.NewTransfer) error { return nil }

func (f *fakeStore) Query(ctx context.Context, sender, recipient *string) ([]store.Transfer, error) {
	f.gotSender, f.gotRecipient = sender, recipient
	return f.transfers, f.err
}

func (f *fakeStore) Close() error { return nil }

func init() {
	gin.SetMode(gin.TestMode)
}

func TestListTransfers_ReturnsTokenAndTransfers(t *testing.T) {
	s := &fakeStore{transfers: []store.Transfer{
		{ID: 1, Sender: "0xaaa", Recipient: "0xbbb", Amount: "42", BlockNumber: 10, TxHash: "0xccc"},
	}}
	h := NewHandler(s, 18, "LOB", zap.NewNop())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/eth/transfers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp TransfersResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token.Decimals != 18 || resp.Token.Symbol != "LOB" {
		t.Errorf("token = %+v, want {18 LOB}", resp.Token)
	}
	if len(resp.Transfers) != 1 {
		t.Fatalf("transfers = %+v, want 1 row", resp.Transfers)
	}
}

func TestListTransfers_PassesSenderFilter(t *testing.T) {
	s := &fakeStore{}
	h := NewHandler(s, 18, "LOB", zap.NewNop())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/eth/transfers?sender=0xaaa", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if s.gotSender == nil || *s.gotSender != "0xaaa" {
		t.Errorf("gotSender = %v, want 0xaaa", s.gotSender)
	}
	if s.gotRecipient != nil {
		t.Errorf("gotRecipient = %v, want nil", s.gotRecipient)
	}
}

func TestListTransfers_StoreErrorReturns500(t *testing.T) {
	s := &fakeStore{err: context.DeadlineExceeded}
	h := NewHandler(s, 18, "LOB", zap.NewNop())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/eth/transfers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCORSMiddleware_OptionsRequestShortCircuits(t *testing.T) {
	s := &fakeStore{}
	h := NewHandler(s, 18, "LOB", zap.NewNop())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodOptions, "/eth/transfers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("missing CORS header")
	}
}

func TestHealthz_ReturnsOK(t *testing.T) {
	s := &fakeStore{}
	h := NewHandler(s, 18, "LOB", zap.NewNop())
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
