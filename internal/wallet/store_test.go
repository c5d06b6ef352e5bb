package wallet

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "wallets.db"), filepath.Join(dir, "wallets.lock"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	rec, err := store.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for unknown user, got %+v", rec)
	}
}

func TestStorePutGetDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	want := Record{
		UserID:       42,
		Address:      "0x00000000000000000000000000000000000000AB",
		EncryptedKey: []byte{1, 2, 3, 4},
	}
	if err := store.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec, err := store.Get(ctx, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil || rec.Address != want.Address {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if string(rec.EncryptedKey) != string(want.EncryptedKey) {
		t.Fatalf("encrypted key mismatch")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatalf("created_at should be populated")
	}

	if err := store.Delete(ctx, 42); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rec, err = store.Get(ctx, 42)
	if err != nil || rec != nil {
		t.Fatalf("record should be gone, got %+v err=%v", rec, err)
	}
}

func TestStorePutReplaces(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := Record{UserID: 7, Address: "0x00000000000000000000000000000000000000AA", EncryptedKey: []byte{1}}
	second := Record{UserID: 7, Address: "0x00000000000000000000000000000000000000BB", EncryptedKey: []byte{2}}
	if err := store.Put(ctx, first); err != nil {
		t.Fatalf("Put first: %v", err)
	}
	if err := store.Put(ctx, second); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	rec, err := store.Get(ctx, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Address != second.Address {
		t.Fatalf("replacement did not win: %s", rec.Address)
	}
}
