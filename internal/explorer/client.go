package explorer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// TokenBalance is one ERC-20 position reported by the block explorer.
type TokenBalance struct {
	Address  common.Address
	Symbol   string
	Decimals int
	Raw      *big.Int
}

// Client reads token balances from a Blockscout-compatible explorer API.
// It is strictly best-effort: every failure degrades to an empty list so
// flows keep working when the explorer is down.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: http, log: log}
}

type tokenBalanceEntry struct {
	Token struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals string `json:"decimals"`
	} `json:"token"`
	Value string `json:"value"`
}

// ListTokenBalances returns the non-zero ERC-20 balances for addr.
// Malformed or zero entries are skipped.
func (c *Client) ListTokenBalances(ctx context.Context, addr common.Address) []TokenBalance {
	var entries []tokenBalanceEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&entries).
		Get(fmt.Sprintf("/api/v2/addresses/%s/token-balances", addr.Hex()))
	if err != nil {
		c.log.Warn("explorer balance fetch failed", zap.String("address", addr.Hex()), zap.Error(err))
		return nil
	}
	if resp.IsError() {
		c.log.Warn("explorer balance fetch rejected",
			zap.String("address", addr.Hex()),
			zap.Int("status", resp.StatusCode()))
		return nil
	}

	out := make([]TokenBalance, 0, len(entries))
	for _, e := range entries {
		if !common.IsHexAddress(e.Token.Address) {
			continue
		}
		raw, ok := new(big.Int).SetString(e.Value, 10)
		if !ok || raw.Sign() <= 0 {
			continue
		}
		decimals, err := strconv.Atoi(e.Token.Decimals)
		if err != nil || decimals < 0 || decimals > 77 {
			decimals = 18
		}
		out = append(out, TokenBalance{
			Address:  common.HexToAddress(e.Token.Address),
			Symbol:   e.Token.Symbol,
			Decimals: decimals,
			Raw:      raw,
		})
	}
	return out
}
