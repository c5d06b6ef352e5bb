package router

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/inky-tools/inkybot/internal/chain"
	"github.com/inky-tools/inkybot/internal/config"
	botderr "github.com/inky-tools/inkybot/internal/errors"
	"github.com/inky-tools/inkybot/internal/registry"
)

// Route is a resolved venue for a token: the router that can trade it and
// the pool the factory reported.
type Route struct {
	Descriptor config.RouterDescriptor
	Pool       common.Address
}

// Resolver scans the configured routers in priority order and returns the
// first one whose factory has a live pool for the token.
type Resolver struct {
	client  chain.Client
	routers []config.RouterDescriptor
	log     *zap.Logger
}

func NewResolver(client chain.Client, routers []config.RouterDescriptor, log *zap.Logger) *Resolver {
	return &Resolver{client: client, routers: routers, log: log}
}

// Resolve returns the highest-priority route for token. A factory RPC
// failure skips that router rather than aborting the scan, so a flaky
// venue cannot mask a healthy lower-priority one.
func (r *Resolver) Resolve(ctx context.Context, token common.Address) (*Route, error) {
	for _, d := range r.routers {
		pool, err := r.lookupPool(ctx, d, token)
		if err != nil {
			r.log.Warn("pool lookup failed, skipping router",
				zap.String("router", d.Name),
				zap.String("token", token.Hex()),
				zap.Error(err))
			continue
		}
		if pool == (common.Address{}) {
			continue
		}
		r.log.Debug("route resolved",
			zap.String("router", d.Name),
			zap.String("kind", string(d.Kind)),
			zap.String("pool", pool.Hex()))
		return &Route{Descriptor: d, Pool: pool}, nil
	}
	return nil, botderr.New(botderr.KindNoPool, "no pool found for token "+token.Hex())
}

// HasPrimaryV3Pool reports whether the first configured V3 router has a
// pool for token. It is a cheap single-lookup check used while a user is
// mid-flow; the full priority scan still runs at execution time.
func (r *Resolver) HasPrimaryV3Pool(ctx context.Context, token common.Address) bool {
	for _, d := range r.routers {
		if d.Kind != config.RouterKindV3 {
			continue
		}
		pool, err := r.lookupPool(ctx, d, token)
		return err == nil && pool != (common.Address{})
	}
	return false
}

func (r *Resolver) lookupPool(ctx context.Context, d config.RouterDescriptor, token common.Address) (common.Address, error) {
	switch d.Kind {
	case config.RouterKindV3:
		out, err := r.client.Call(ctx, d.FactoryAddress(), registry.V3Factory, "getPool",
			d.WETHAddress(), token, big.NewInt(d.Fee))
		if err != nil {
			return common.Address{}, err
		}
		return out[0].(common.Address), nil
	case config.RouterKindV2:
		out, err := r.client.Call(ctx, d.FactoryAddress(), registry.V2Factory, "getPair", token, d.WETHAddress())
		if err != nil {
			return common.Address{}, err
		}
		return out[0].(common.Address), nil
	default:
		return common.Address{}, botderr.New(botderr.KindInternal, "unknown router kind "+string(d.Kind))
	}
}
