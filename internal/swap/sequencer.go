package swap

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/chain"
	botderr "github.com/inky-tools/inkybot/internal/errors"
	"github.com/inky-tools/inkybot/internal/registry"
	"github.com/inky-tools/inkybot/internal/router"
)

const (
	gasTransfer        = 30000
	gasPlainETH        = 21000
	gasTokenSend       = 60000
	gasApproveOrUnwrap = 80000
	gasSwap            = 600000

	swapDeadline = 300 * time.Second
)

// RouteResolver is the slice of the resolver the sequencer depends on.
type RouteResolver interface {
	Resolve(ctx context.Context, token common.Address) (*router.Route, error)
}

// Outcome reports every hash produced by a trade sequence. Later steps may
// fail after earlier ones confirmed, so a non-nil error from the sequencer
// never invalidates the hashes already recorded here.
type Outcome struct {
	Router      string
	FeeHash     string
	ApproveHash string
	SwapHash    string
	UnwrapHash  string
	ReturnHash  string

	// FeeNotApplied is set on a sell when the swap and unwrap produced no
	// positive ETH delta, so there was nothing to skim.
	FeeNotApplied bool
	// UnwrapError carries a non-fatal unwrap failure: the swap itself
	// succeeded and its hash is valid, but proceeds remain as WETH.
	UnwrapError string
}

// Sequencer drives the multi-step transaction plans for buys, sells and
// withdrawals. Every step fetches a fresh pending nonce and a fresh gas
// price is taken once per plan, doubled for prompt inclusion.
type Sequencer struct {
	client    chain.Client
	resolver  RouteResolver
	feeWallet common.Address
	log       *zap.Logger
}

func NewSequencer(client chain.Client, resolver RouteResolver, feeWallet common.Address, log *zap.Logger) *Sequencer {
	return &Sequencer{client: client, resolver: resolver, feeWallet: feeWallet, log: log}
}

// FeeOf returns the 1% platform fee, floored. FeeOf(x) + (x - FeeOf(x))
// always reassembles x exactly.
func FeeOf(amount *big.Int) *big.Int {
	return new(big.Int).Div(amount, big.NewInt(100))
}

// ExecuteBuy swaps ETH for token on behalf of wallet. The fee transfer is
// confirmed before the swap is built; the swap itself is submitted without
// waiting for its receipt.
func (s *Sequencer) ExecuteBuy(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, ethAmount *big.Int, token common.Address) (*Outcome, error) {
	out := &Outcome{}

	fee := FeeOf(ethAmount)
	swapAmount := new(big.Int).Sub(ethAmount, fee)
	gasPrice, err := s.fastGasPrice(ctx)
	if err != nil {
		return out, err
	}

	feeHash, err := s.transferETH(ctx, wallet, key, s.feeWallet, fee, gasTransfer, gasPrice)
	if err != nil {
		return out, s.stepErr("fee transfer", err)
	}
	out.FeeHash = feeHash.Hex()
	if _, err := s.client.WaitReceipt(ctx, feeHash); err != nil {
		return out, s.partial("fee confirmation", err)
	}

	route, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return out, s.partial("router selection", err)
	}
	out.Router = route.Descriptor.Name
	weth := route.Descriptor.WETHAddress()

	var data []byte
	switch route.Descriptor.Kind {
	case "v3":
		data, err = registry.V3Router.Pack("exactInputSingle", exactInputSingleParams{
			TokenIn:           weth,
			TokenOut:          token,
			Fee:               big.NewInt(route.Descriptor.Fee),
			Recipient:         wallet,
			AmountIn:          swapAmount,
			AmountOutMinimum:  big.NewInt(0),
			SqrtPriceLimitX96: big.NewInt(0),
		})
	default:
		deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
		data, err = registry.V2Router.Pack("swapExactETHForTokens",
			big.NewInt(0), []common.Address{weth, token}, wallet, deadline)
	}
	if err != nil {
		return out, s.partial("swap calldata", botderr.Wrap(botderr.KindInternal, "pack swap", err))
	}

	to := route.Descriptor.RouterAddress()
	swapHash, err := s.sendContractTx(ctx, wallet, key, to, swapAmount, data, gasSwap, gasPrice)
	if err != nil {
		return out, s.partial("swap submission", err)
	}
	out.SwapHash = swapHash.Hex()
	s.log.Info("buy submitted",
		zap.String("wallet", wallet.Hex()),
		zap.String("router", route.Descriptor.Name),
		zap.String("fee_tx", out.FeeHash),
		zap.String("swap_tx", out.SwapHash))
	return out, nil
}

// ExecuteSell swaps token for ETH. On the V3 path proceeds arrive as WETH
// in the user's wallet, so the sequence unwraps and then skims the fee out
// of the realized ETH delta with two follow-up transfers.
func (s *Sequencer) ExecuteSell(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, token common.Address, amountIn *big.Int) (*Outcome, error) {
	out := &Outcome{}

	route, err := s.resolver.Resolve(ctx, token)
	if err != nil {
		return out, s.stepErr("router selection", err)
	}
	out.Router = route.Descriptor.Name
	weth := route.Descriptor.WETHAddress()
	routerAddr := route.Descriptor.RouterAddress()

	gasPrice, err := s.fastGasPrice(ctx)
	if err != nil {
		return out, err
	}

	approveData, err := registry.ERC20.Pack("approve", routerAddr, amountIn)
	if err != nil {
		return out, botderr.Wrap(botderr.KindInternal, "pack approve", err)
	}
	approveHash, err := s.sendContractTx(ctx, wallet, key, token, nil, approveData, gasApproveOrUnwrap, gasPrice)
	if err != nil {
		return out, s.stepErr("approve", err)
	}
	out.ApproveHash = approveHash.Hex()
	if _, err := s.client.WaitReceipt(ctx, approveHash); err != nil {
		return out, s.partial("approve confirmation", err)
	}

	if route.Descriptor.Kind == "v2" {
		deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
		data, err := registry.V2Router.Pack("swapExactTokensForETH",
			amountIn, big.NewInt(0), []common.Address{token, weth}, wallet, deadline)
		if err != nil {
			return out, s.partial("swap calldata", botderr.Wrap(botderr.KindInternal, "pack swap", err))
		}
		swapHash, err := s.sendContractTx(ctx, wallet, key, routerAddr, nil, data, gasSwap, gasPrice)
		if err != nil {
			return out, s.partial("swap submission", err)
		}
		out.SwapHash = swapHash.Hex()
		if _, err := s.client.WaitReceipt(ctx, swapHash); err != nil {
			return out, s.partial("swap confirmation", err)
		}
		return out, nil
	}

	// V3 path. Snapshot the ETH balance so the realized proceeds can be
	// measured after unwrap.
	ethBefore, err := s.client.Balance(ctx, wallet)
	if err != nil {
		return out, s.partial("balance snapshot", err)
	}

	data, err := registry.V3Router.Pack("exactInputSingle", exactInputSingleParams{
		TokenIn:           token,
		TokenOut:          weth,
		Fee:               big.NewInt(route.Descriptor.Fee),
		Recipient:         wallet,
		AmountIn:          amountIn,
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return out, s.partial("swap calldata", botderr.Wrap(botderr.KindInternal, "pack swap", err))
	}
	swapHash, err := s.sendContractTx(ctx, wallet, key, routerAddr, nil, data, gasSwap, gasPrice)
	if err != nil {
		return out, s.partial("swap submission", err)
	}
	out.SwapHash = swapHash.Hex()
	if _, err := s.client.WaitReceipt(ctx, swapHash); err != nil {
		return out, s.partial("swap confirmation", err)
	}

	// Unwrap failures are non-fatal: the swap hash stays valid and the
	// proceeds just remain as WETH in the wallet.
	if err := s.unwrapAndSkim(ctx, wallet, key, weth, ethBefore, gasPrice, out); err != nil {
		out.UnwrapError = err.Error()
	}
	return out, nil
}

func (s *Sequencer) unwrapAndSkim(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, weth common.Address, ethBefore, gasPrice *big.Int, out *Outcome) error {
	values, err := s.client.Call(ctx, weth, registry.WETH, "balanceOf", wallet)
	if err != nil {
		return err
	}
	wethBalance := values[0].(*big.Int)

	if wethBalance.Sign() > 0 {
		data, err := registry.WETH.Pack("withdraw", wethBalance)
		if err != nil {
			return botderr.Wrap(botderr.KindInternal, "pack withdraw", err)
		}
		unwrapHash, err := s.sendContractTx(ctx, wallet, key, weth, nil, data, gasApproveOrUnwrap, gasPrice)
		if err != nil {
			return err
		}
		out.UnwrapHash = unwrapHash.Hex()
		if _, err := s.client.WaitReceipt(ctx, unwrapHash); err != nil {
			return err
		}
	}

	ethAfter, err := s.client.Balance(ctx, wallet)
	if err != nil {
		return err
	}
	delta := new(big.Int).Sub(ethAfter, ethBefore)
	if delta.Sign() <= 0 {
		out.FeeNotApplied = true
		return nil
	}

	fee := FeeOf(delta)
	returnAmount := new(big.Int).Sub(delta, fee)

	feeHash, err := s.transferETH(ctx, wallet, key, s.feeWallet, fee, gasTransfer, gasPrice)
	if err != nil {
		return err
	}
	out.FeeHash = feeHash.Hex()

	returnHash, err := s.transferETH(ctx, wallet, key, wallet, returnAmount, gasTransfer, gasPrice)
	if err != nil {
		return err
	}
	out.ReturnHash = returnHash.Hex()
	s.log.Info("sell fee skimmed",
		zap.String("wallet", wallet.Hex()),
		zap.String("fee_tx", out.FeeHash),
		zap.String("return_tx", out.ReturnHash))
	return nil
}

// WithdrawETH sends a plain value transfer out of the custodial wallet.
// No fee is taken and the gas price is left at the node's suggestion.
func (s *Sequencer) WithdrawETH(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, to common.Address, amount *big.Int) (string, error) {
	gasPrice, err := s.client.GasPrice(ctx)
	if err != nil {
		return "", err
	}
	hash, err := s.transferETH(ctx, wallet, key, to, amount, gasPlainETH, gasPrice)
	if err != nil {
		return "", s.stepErr("withdraw", err)
	}
	return hash.Hex(), nil
}

// WithdrawToken sends an ERC-20 transfer out of the custodial wallet.
func (s *Sequencer) WithdrawToken(ctx context.Context, wallet common.Address, key *ecdsa.PrivateKey, token, to common.Address, amount *big.Int) (string, error) {
	gasPrice, err := s.client.GasPrice(ctx)
	if err != nil {
		return "", err
	}
	data, err := registry.ERC20.Pack("transfer", to, amount)
	if err != nil {
		return "", botderr.Wrap(botderr.KindInternal, "pack transfer", err)
	}
	hash, err := s.sendContractTx(ctx, wallet, key, token, nil, data, gasTokenSend, gasPrice)
	if err != nil {
		return "", s.stepErr("withdraw", err)
	}
	return hash.Hex(), nil
}

func (s *Sequencer) fastGasPrice(ctx context.Context) (*big.Int, error) {
	p, err := s.client.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return p.Mul(p, big.NewInt(2)), nil
}

func (s *Sequencer) transferETH(ctx context.Context, from common.Address, key *ecdsa.PrivateKey, to common.Address, amount *big.Int, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	nonce, err := s.client.PendingNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      gasLimit,
		GasPrice: gasPrice,
	})
	return s.signAndSend(ctx, tx, key)
}

func (s *Sequencer) sendContractTx(ctx context.Context, from common.Address, key *ecdsa.PrivateKey, to common.Address, value *big.Int, data []byte, gasLimit uint64, gasPrice *big.Int) (common.Hash, error) {
	nonce, err := s.client.PendingNonce(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	return s.signAndSend(ctx, tx, key)
}

func (s *Sequencer) signAndSend(ctx context.Context, tx *types.Transaction, key *ecdsa.PrivateKey) (common.Hash, error) {
	signed, err := chain.SignTx(s.client.ChainID(), tx, key)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.client.SendTx(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

// stepErr maps a raw step failure onto the user-facing taxonomy, keeping
// the pending-transaction case distinct.
func (s *Sequencer) stepErr(step string, err error) error {
	if botderr.Is(err, botderr.KindPendingTx) || chain.IsNonceTooLow(err) {
		return botderr.New(botderr.KindPendingTx,
			"a previous transaction is still pending, wait for it to confirm before trading again")
	}
	if _, ok := botderr.As(err); ok {
		return err
	}
	return botderr.Wrap(botderr.KindRPC, step, err)
}

// partial marks a failure that happened after at least one transaction in
// the plan was already accepted.
func (s *Sequencer) partial(step string, err error) error {
	mapped := s.stepErr(step, err)
	if botderr.Is(mapped, botderr.KindPendingTx) {
		return mapped
	}
	return botderr.Wrap(botderr.KindPartial, step+" failed after earlier steps confirmed", mapped)
}

// exactInputSingleParams mirrors the SwapRouter02 exactInputSingle tuple.
type exactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}
