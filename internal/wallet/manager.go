package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	botderr "github.com/inky-tools/inkybot/internal/errors"
)

// Wallet is the public view of a custodial wallet. It never carries key
// material.
type Wallet struct {
	UserID  int64
	Address common.Address
}

// Manager owns wallet custody: creation, lookup, key export and reset.
// Private keys are decrypted only inside SigningKey and ExportKey calls.
type Manager struct {
	store  *Store
	cipher *Cipher
	log    *zap.Logger
}

func NewManager(store *Store, cipher *Cipher, log *zap.Logger) *Manager {
	return &Manager{store: store, cipher: cipher, log: log}
}

// GetOrCreate returns the user's wallet, generating one on first contact.
// The second return reports whether a fresh wallet was created.
func (m *Manager) GetOrCreate(ctx context.Context, userID int64) (*Wallet, bool, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, false, botderr.Wrap(botderr.KindInternal, "wallet lookup", err)
	}
	if rec != nil {
		return &Wallet{UserID: userID, Address: common.HexToAddress(rec.Address)}, false, nil
	}
	w, err := m.create(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return w, true, nil
}

// Get returns nil when the user has no wallet yet.
func (m *Manager) Get(ctx context.Context, userID int64) (*Wallet, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "wallet lookup", err)
	}
	if rec == nil {
		return nil, nil
	}
	return &Wallet{UserID: userID, Address: common.HexToAddress(rec.Address)}, nil
}

// Reset discards the user's wallet and generates a new one. The old key is
// gone for good once this returns.
func (m *Manager) Reset(ctx context.Context, userID int64) (*Wallet, error) {
	if err := m.store.Delete(ctx, userID); err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "wallet reset", err)
	}
	return m.create(ctx, userID)
}

// SigningKey decrypts the user's private key for immediate use. Callers
// must not retain the returned key beyond the signing operation.
func (m *Manager) SigningKey(ctx context.Context, userID int64) (*ecdsa.PrivateKey, error) {
	rec, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "wallet lookup", err)
	}
	if rec == nil {
		return nil, botderr.New(botderr.KindValidation, "no wallet for this user")
	}
	raw, err := m.cipher.Open(rec.EncryptedKey)
	if err != nil {
		return nil, err
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "parse wallet key", err)
	}
	return key, nil
}

// ExportKey returns the hex private key for user display.
func (m *Manager) ExportKey(ctx context.Context, userID int64) (string, error) {
	key, err := m.SigningKey(ctx, userID)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(crypto.FromECDSA(key)), nil
}

func (m *Manager) create(ctx context.Context, userID int64) (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "generate wallet key", err)
	}
	sealed, err := m.cipher.Seal(crypto.FromECDSA(key))
	if err != nil {
		return nil, err
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	rec := Record{UserID: userID, Address: addr.Hex(), EncryptedKey: sealed}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, botderr.Wrap(botderr.KindInternal, "store wallet", err)
	}
	m.log.Info("wallet created", zap.Int64("user_id", userID), zap.String("address", addr.Hex()))
	return &Wallet{UserID: userID, Address: addr}, nil
}
