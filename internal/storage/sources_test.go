package storage

import (
	"context"
	"testing"
)

func TestFileSourceStore(t *testing.T) {
	store, err := NewFileSourceStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSourceStore() error = %v", err)
	}
	ctx := context.Background()

	const addr = "0xAbCd567890abcdef1234567890abcdef12345678"
	const source = "pragma solidity ^0.8.20;\ncontract Counter {}\n"

	t.Run("PutAndGetSource", func(t *testing.T) {
		key, err := store.PutSource(ctx, "bsc-testnet", addr, source)
		if err != nil {
			t.Fatalf("PutSource() error = %v", err)
		}
		if key == "" {
			t.Fatal("PutSource() returned empty key")
		}

		got, err := store.GetSource(ctx, "bsc-testnet", addr)
		if err != nil {
			t.Fatalf("GetSource() error = %v", err)
		}
		if got != source {
			t.Errorf("GetSource() = %q, want %q", got, source)
		}
	})

	t.Run("AddressCaseInsensitive", func(t *testing.T) {
		got, err := store.GetSource(ctx, "bsc-testnet", "0xabcd567890abcdef1234567890abcdef12345678")
		if err != nil {
			t.Fatalf("GetSource(lowercase) error = %v", err)
		}
		if got != source {
			t.Error("GetSource(lowercase) returned different content")
		}
	})

	t.Run("MissingSourceIsNotFound", func(t *testing.T) {
		_, err := store.GetSource(ctx, "bsc-testnet", "0x0000000000000000000000000000000000000000")
		if err != ErrNotFound {
			t.Errorf("GetSource(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("PutAndGetABI", func(t *testing.T) {
		abi := []byte(`[{"type":"function","name":"increment"}]`)
		if _, err := store.PutABI(ctx, "bsc-testnet", addr, abi); err != nil {
			t.Fatalf("PutABI() error = %v", err)
		}

		got, err := store.GetABI(ctx, "bsc-testnet", addr)
		if err != nil {
			t.Fatalf("GetABI() error = %v", err)
		}
		if string(got) != string(abi) {
			t.Errorf("GetABI() = %s, want %s", got, abi)
		}
	})
}
