package swap

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/config"
	botderr "github.com/inky-tools/inkybot/internal/errors"
	"github.com/inky-tools/inkybot/internal/router"
)

type fakeClient struct {
	nonce    uint64
	gasPrice *big.Int
	// balances are consumed in order by Balance calls.
	balances []*big.Int

	callResults map[string][]interface{}
	callErrs    map[string]error

	sent      []*types.Transaction
	sendErrAt map[int]error
	waited    []common.Hash
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		gasPrice:    big.NewInt(100),
		callResults: map[string][]interface{}{},
		callErrs:    map[string]error{},
		sendErrAt:   map[int]error{},
	}
}

func (f *fakeClient) ChainID() *big.Int { return big.NewInt(57073) }

func (f *fakeClient) Balance(context.Context, common.Address) (*big.Int, error) {
	if len(f.balances) == 0 {
		return big.NewInt(0), nil
	}
	v := f.balances[0]
	f.balances = f.balances[1:]
	return v, nil
}

func (f *fakeClient) PendingNonce(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) Call(_ context.Context, _ common.Address, _ abi.ABI, method string, _ ...interface{}) ([]interface{}, error) {
	if err := f.callErrs[method]; err != nil {
		return nil, err
	}
	return f.callResults[method], nil
}

func (f *fakeClient) SendTx(_ context.Context, tx *types.Transaction) error {
	if err := f.sendErrAt[len(f.sent)]; err != nil {
		return err
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeClient) WaitReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.waited = append(f.waited, hash)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

type fakeResolver struct {
	route *router.Route
	err   error
}

func (f *fakeResolver) Resolve(context.Context, common.Address) (*router.Route, error) {
	return f.route, f.err
}

var (
	feeWallet  = common.HexToAddress("0x00000000000000000000000000000000000000FE")
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000000DD")
	wethAddr   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000A0")
)

func v3Route() *router.Route {
	return &router.Route{
		Descriptor: config.RouterDescriptor{
			Name:    "InkyFactory",
			Router:  routerAddr.Hex(),
			Factory: "0x00000000000000000000000000000000000000A1",
			Kind:    config.RouterKindV3,
			Fee:     10000,
			WETH:    wethAddr.Hex(),
		},
		Pool: common.HexToAddress("0x00000000000000000000000000000000000000CC"),
	}
}

func v2Route() *router.Route {
	r := v3Route()
	r.Descriptor.Name = "InkySwap"
	r.Descriptor.Kind = config.RouterKindV2
	r.Descriptor.Fee = 0
	return r
}

func eth(milli int64) *big.Int {
	// milli-ETH in wei
	return new(big.Int).Mul(big.NewInt(milli), big.NewInt(1e15))
}

func TestFeeOf(t *testing.T) {
	cases := []struct {
		amount *big.Int
		fee    *big.Int
	}{
		{big.NewInt(100), big.NewInt(1)},
		{big.NewInt(199), big.NewInt(1)},
		{big.NewInt(99), big.NewInt(0)},
		{eth(50), big.NewInt(5e14)},
	}
	for _, tc := range cases {
		fee := FeeOf(tc.amount)
		if fee.Cmp(tc.fee) != 0 {
			t.Fatalf("FeeOf(%s) = %s, want %s", tc.amount, fee, tc.fee)
		}
		rest := new(big.Int).Sub(tc.amount, fee)
		if new(big.Int).Add(fee, rest).Cmp(tc.amount) != 0 {
			t.Fatalf("fee %s + rest %s must reassemble %s exactly", fee, rest, tc.amount)
		}
	}
}

func TestExecuteBuy(t *testing.T) {
	client := newFakeClient()
	seq := NewSequencer(client, &fakeResolver{route: v3Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	amount := eth(50) // 0.05 ETH
	out, err := seq.ExecuteBuy(context.Background(), wallet, key, amount, tokenAddr)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("expected fee + swap transactions, got %d", len(client.sent))
	}

	feeTx, swapTx := client.sent[0], client.sent[1]
	if *feeTx.To() != feeWallet {
		t.Fatalf("fee tx sent to %s", feeTx.To().Hex())
	}
	if feeTx.Value().Cmp(big.NewInt(5e14)) != 0 { // 1% of 0.05 ETH
		t.Fatalf("fee value = %s, want 5e14", feeTx.Value())
	}
	if feeTx.Gas() != 30000 {
		t.Fatalf("fee gas = %d, want 30000", feeTx.Gas())
	}
	if feeTx.GasPrice().Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("fee gas price = %s, want doubled 200", feeTx.GasPrice())
	}

	if *swapTx.To() != routerAddr {
		t.Fatalf("swap tx sent to %s", swapTx.To().Hex())
	}
	wantSwap := new(big.Int).Sub(amount, feeTx.Value())
	if swapTx.Value().Cmp(wantSwap) != 0 {
		t.Fatalf("swap value = %s, want %s", swapTx.Value(), wantSwap)
	}
	if swapTx.Gas() != 600000 {
		t.Fatalf("swap gas = %d, want 600000", swapTx.Gas())
	}

	// The fee must confirm before the swap; the swap itself is not
	// awaited.
	if len(client.waited) != 1 || client.waited[0] != feeTx.Hash() {
		t.Fatalf("only the fee tx should be awaited, waited %v", client.waited)
	}
	if !strings.HasPrefix(out.FeeHash, "0x") || !strings.HasPrefix(out.SwapHash, "0x") {
		t.Fatalf("hashes must be 0x-prefixed: %q %q", out.FeeHash, out.SwapHash)
	}
}

func TestExecuteBuyNonceTooLowKeepsFeeHash(t *testing.T) {
	client := newFakeClient()
	client.sendErrAt[1] = errors.New("nonce too low")
	seq := NewSequencer(client, &fakeResolver{route: v3Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	out, err := seq.ExecuteBuy(context.Background(), wallet, key, eth(50), tokenAddr)
	if !botderr.Is(err, botderr.KindPendingTx) {
		t.Fatalf("expected KindPendingTx, got %v", err)
	}
	if !strings.Contains(err.Error(), "previous transaction is still pending") {
		t.Fatalf("unexpected message: %v", err)
	}
	if out.FeeHash == "" {
		t.Fatalf("fee hash from the confirmed step must survive the failure")
	}
	if out.SwapHash != "" {
		t.Fatalf("swap hash must be empty after a failed submission")
	}
}

func TestExecuteBuyNoPoolAfterFee(t *testing.T) {
	client := newFakeClient()
	noPool := botderr.New(botderr.KindNoPool, "no pool found")
	seq := NewSequencer(client, &fakeResolver{err: noPool}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	out, err := seq.ExecuteBuy(context.Background(), wallet, key, eth(50), tokenAddr)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !botderr.Is(err, botderr.KindPartial) {
		t.Fatalf("failure after the fee confirmed must be partial, got %v", err)
	}
	if out.FeeHash == "" {
		t.Fatalf("fee hash must be reported")
	}
	if len(client.sent) != 1 {
		t.Fatalf("no swap may be attempted without a route, sent %d", len(client.sent))
	}
}

func TestExecuteSellV2(t *testing.T) {
	client := newFakeClient()
	seq := NewSequencer(client, &fakeResolver{route: v2Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	amount := big.NewInt(1e18)
	out, err := seq.ExecuteSell(context.Background(), wallet, key, tokenAddr, amount)
	if err != nil {
		t.Fatalf("ExecuteSell: %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("v2 sell is approve + swap only, sent %d", len(client.sent))
	}
	approveTx, swapTx := client.sent[0], client.sent[1]
	if *approveTx.To() != tokenAddr || approveTx.Gas() != 80000 {
		t.Fatalf("unexpected approve tx: to=%s gas=%d", approveTx.To().Hex(), approveTx.Gas())
	}
	if *swapTx.To() != routerAddr || swapTx.Gas() != 600000 {
		t.Fatalf("unexpected swap tx: to=%s gas=%d", swapTx.To().Hex(), swapTx.Gas())
	}
	if len(client.waited) != 2 {
		t.Fatalf("approve and swap must both be awaited, waited %d", len(client.waited))
	}
	if out.FeeHash != "" || out.ReturnHash != "" || out.FeeNotApplied {
		t.Fatalf("v2 sell must not skim: %+v", out)
	}
}

func TestExecuteSellV3SkimsPositiveDelta(t *testing.T) {
	client := newFakeClient()
	before := big.NewInt(1e18)
	after := new(big.Int).Add(before, big.NewInt(5e17))
	client.balances = []*big.Int{before, after}
	client.callResults["balanceOf"] = []interface{}{big.NewInt(5e17)}

	seq := NewSequencer(client, &fakeResolver{route: v3Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	out, err := seq.ExecuteSell(context.Background(), wallet, key, tokenAddr, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("ExecuteSell: %v", err)
	}
	// approve, swap, unwrap, fee transfer, return transfer
	if len(client.sent) != 5 {
		t.Fatalf("expected 5 transactions, sent %d", len(client.sent))
	}
	unwrapTx := client.sent[2]
	if *unwrapTx.To() != wethAddr || unwrapTx.Gas() != 80000 {
		t.Fatalf("unexpected unwrap tx: to=%s gas=%d", unwrapTx.To().Hex(), unwrapTx.Gas())
	}
	feeTx, returnTx := client.sent[3], client.sent[4]
	if *feeTx.To() != feeWallet {
		t.Fatalf("fee skim sent to %s", feeTx.To().Hex())
	}
	if *returnTx.To() != wallet {
		t.Fatalf("remainder must return to the user's own wallet, went to %s", returnTx.To().Hex())
	}
	delta := big.NewInt(5e17)
	total := new(big.Int).Add(feeTx.Value(), returnTx.Value())
	if total.Cmp(delta) != 0 {
		t.Fatalf("fee %s + return %s must equal delta %s", feeTx.Value(), returnTx.Value(), delta)
	}
	// Skim transfers are fire-and-forget; approve, swap and unwrap were
	// awaited.
	if len(client.waited) != 3 {
		t.Fatalf("expected 3 awaited receipts, got %d", len(client.waited))
	}
	if out.FeeNotApplied || out.UnwrapError != "" {
		t.Fatalf("unexpected markers: %+v", out)
	}
	if out.FeeHash == "" || out.ReturnHash == "" || out.UnwrapHash == "" {
		t.Fatalf("all skim hashes must be reported: %+v", out)
	}
}

func TestExecuteSellV3NonPositiveDelta(t *testing.T) {
	client := newFakeClient()
	client.balances = []*big.Int{big.NewInt(1e18), big.NewInt(1e18)}
	client.callResults["balanceOf"] = []interface{}{big.NewInt(0)}

	seq := NewSequencer(client, &fakeResolver{route: v3Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	out, err := seq.ExecuteSell(context.Background(), wallet, key, tokenAddr, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("ExecuteSell: %v", err)
	}
	if !out.FeeNotApplied {
		t.Fatalf("zero delta must set the fee-not-applied marker")
	}
	// approve + swap only: no WETH meant no unwrap, and no skim.
	if len(client.sent) != 2 {
		t.Fatalf("no transfers may be attempted on zero delta, sent %d", len(client.sent))
	}
}

func TestExecuteSellV3UnwrapFailureIsNonFatal(t *testing.T) {
	client := newFakeClient()
	client.balances = []*big.Int{big.NewInt(1e18)}
	client.callErrs["balanceOf"] = errors.New("execution reverted")

	seq := NewSequencer(client, &fakeResolver{route: v3Route()}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)

	out, err := seq.ExecuteSell(context.Background(), wallet, key, tokenAddr, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("unwrap failure must not fail the sell: %v", err)
	}
	if out.SwapHash == "" {
		t.Fatalf("swap hash must be reported")
	}
	if out.UnwrapError == "" {
		t.Fatalf("unwrap error marker must be set")
	}
	if out.FeeHash != "" || out.ReturnHash != "" {
		t.Fatalf("no skim after a failed unwrap: %+v", out)
	}
}

func TestWithdrawETH(t *testing.T) {
	client := newFakeClient()
	seq := NewSequencer(client, &fakeResolver{}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000EE")

	hash, err := seq.WithdrawETH(context.Background(), wallet, key, recipient, big.NewInt(1e16))
	if err != nil {
		t.Fatalf("WithdrawETH: %v", err)
	}
	if !strings.HasPrefix(hash, "0x") {
		t.Fatalf("hash not 0x-prefixed: %q", hash)
	}
	tx := client.sent[0]
	if tx.Gas() != 21000 {
		t.Fatalf("eth withdraw gas = %d, want 21000", tx.Gas())
	}
	if tx.GasPrice().Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("withdrawals use the suggested gas price, got %s", tx.GasPrice())
	}
	if len(client.waited) != 0 {
		t.Fatalf("withdrawals are not awaited")
	}
}

func TestWithdrawToken(t *testing.T) {
	client := newFakeClient()
	seq := NewSequencer(client, &fakeResolver{}, feeWallet, zap.NewNop())
	key, _ := crypto.GenerateKey()
	wallet := crypto.PubkeyToAddress(key.PublicKey)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000EE")

	hash, err := seq.WithdrawToken(context.Background(), wallet, key, tokenAddr, recipient, big.NewInt(1e18))
	if err != nil {
		t.Fatalf("WithdrawToken: %v", err)
	}
	if hash == "" {
		t.Fatalf("missing hash")
	}
	tx := client.sent[0]
	if *tx.To() != tokenAddr {
		t.Fatalf("token withdraw must call the token contract, went to %s", tx.To().Hex())
	}
	if tx.Gas() != 60000 {
		t.Fatalf("token withdraw gas = %d, want 60000", tx.Gas())
	}
	if tx.Value() != nil && tx.Value().Sign() != 0 {
		t.Fatalf("token withdraw carries no ETH value")
	}
}
