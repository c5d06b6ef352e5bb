package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

const balancesPayload = `[
	{"token": {"address": "0x00000000000000000000000000000000000000DD", "symbol": "INKY", "decimals": "18"}, "value": "1500000000000000000"},
	{"token": {"address": "0x00000000000000000000000000000000000000EE", "symbol": "ZERO", "decimals": "18"}, "value": "0"},
	{"token": {"address": "not-an-address", "symbol": "BAD", "decimals": "18"}, "value": "5"},
	{"token": {"address": "0x00000000000000000000000000000000000000FF", "symbol": "ODD", "decimals": "junk"}, "value": "7"}
]`

func TestListTokenBalances(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "/api/v2/addresses/" + addr.Hex() + "/token-balances"
		if r.URL.Path != want {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(balancesPayload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	got := c.ListTokenBalances(context.Background(), addr)

	// Zero and malformed-address entries are dropped; a bad decimals
	// string falls back to 18.
	if len(got) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(got))
	}
	if got[0].Symbol != "INKY" || got[0].Decimals != 18 {
		t.Fatalf("unexpected first balance: %+v", got[0])
	}
	if got[0].Raw.String() != "1500000000000000000" {
		t.Fatalf("unexpected raw amount: %s", got[0].Raw)
	}
	if got[1].Symbol != "ODD" || got[1].Decimals != 18 {
		t.Fatalf("bad decimals should default to 18: %+v", got[1])
	}
}

func TestListTokenBalancesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	got := c.ListTokenBalances(context.Background(), common.Address{})
	if len(got) != 0 {
		t.Fatalf("explorer failures must degrade to an empty list, got %d", len(got))
	}
}

func TestListTokenBalancesUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", zap.NewNop())
	got := c.ListTokenBalances(context.Background(), common.Address{})
	if len(got) != 0 {
		t.Fatalf("connection errors must degrade to an empty list, got %d", len(got))
	}
}
