package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	botderr "github.com/inky-tools/inkybot/internal/errors"
)

// Client is the narrow node surface the orchestrator needs. The sequencer
// and resolver depend on this interface so tests can substitute a fake.
type Client interface {
	ChainID() *big.Int
	Balance(ctx context.Context, addr common.Address) (*big.Int, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	// Call performs a read-only contract call and returns the unpacked
	// outputs of the named method.
	Call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error)
	SendTx(ctx context.Context, tx *types.Transaction) error
	// WaitReceipt blocks until the transaction is mined or the configured
	// step timeout elapses.
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

type RPCOptions struct {
	PollInterval time.Duration
	StepTimeout  time.Duration
}

// RPCClient implements Client on top of a go-ethereum RPC connection.
type RPCClient struct {
	eth     *ethclient.Client
	chainID *big.Int
	opts    RPCOptions
	log     *zap.Logger
}

func Dial(ctx context.Context, rpcURL string, chainID int64, opts RPCOptions, log *zap.Logger) (*RPCClient, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 2 * time.Minute
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "connect rpc", err)
	}
	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, botderr.Wrap(botderr.KindRPC, "read chain id", err)
	}
	if remote.Int64() != chainID {
		eth.Close()
		return nil, botderr.New(botderr.KindUsage, fmt.Sprintf("rpc chain id mismatch: configured %d, node reports %d", chainID, remote.Int64()))
	}
	return &RPCClient{eth: eth, chainID: remote, opts: opts, log: log}, nil
}

func (c *RPCClient) Close() { c.eth.Close() }

func (c *RPCClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *RPCClient) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	v, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "fetch balance", err)
	}
	return v, nil
}

func (c *RPCClient) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	n, err := c.eth.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, botderr.Wrap(botderr.KindRPC, "fetch nonce", err)
	}
	return n, nil
}

func (c *RPCClient) GasPrice(ctx context.Context) (*big.Int, error) {
	p, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "fetch gas price", err)
	}
	return p, nil
}

func (c *RPCClient) Call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "pack calldata for "+method, err)
	}
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "call "+method, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "unpack "+method+" result", err)
	}
	return values, nil
}

func (c *RPCClient) SendTx(ctx context.Context, tx *types.Transaction) error {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		if IsNonceTooLow(err) {
			return botderr.Wrap(botderr.KindPendingTx, "broadcast transaction", err)
		}
		return botderr.Wrap(botderr.KindRPC, "broadcast transaction", err)
	}
	return nil
}

func (c *RPCClient) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.StepTimeout)
	defer cancel()

	var receipt *types.Receipt
	poll := func() error {
		r, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err != nil {
			return err // retried until the timeout, NotFound included
		}
		receipt = r
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.PollInterval
	policy.MaxInterval = 4 * c.opts.PollInterval
	policy.MaxElapsedTime = c.opts.StepTimeout
	if err := backoff.Retry(poll, backoff.WithContext(policy, waitCtx)); err != nil {
		return nil, botderr.Wrap(botderr.KindRPC, "wait for receipt "+hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, botderr.New(botderr.KindRPC, "transaction reverted on-chain: "+hash.Hex())
	}
	c.log.Debug("transaction mined", zap.String("hash", hash.Hex()), zap.Uint64("block", receipt.BlockNumber.Uint64()))
	return receipt, nil
}

// SignTx signs with the chain's latest signer. The private key is used for
// this call only and never stored on the client.
func SignTx(chainID *big.Int, tx *types.Transaction, key *ecdsa.PrivateKey) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "sign transaction", err)
	}
	return signed, nil
}

// IsNonceTooLow detects the nonce-too-low RPC failure, which means an
// earlier transaction from the same wallet is still pending.
func IsNonceTooLow(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}
