// Steambridge - Game Library Session and Synchronization Bridge
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/steambridge

package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

func testKey(fill byte) string {
	return base64.StdEncoding.EncodeToString([]byte(strings.Repeat(string(fill), 32)))
}

func TestNewCredentialEncryptor(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantNil bool
		wantErr bool
	}{
		{"empty disables", "", true, false},
		{"valid key", testKey('k'), false, false},
		{"not base64", "not base64!", true, true},
		{"too short", base64.StdEncoding.EncodeToString([]byte("short")), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewCredentialEncryptor(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if (e == nil) != tt.wantNil {
				t.Errorf("encryptor nil = %v, want %v", e == nil, tt.wantNil)
			}
		})
	}
}

func TestCredentialEncryptorRoundTrip(t *testing.T) {
	e, err := NewCredentialEncryptor(testKey('k'))
	if err != nil {
		t.Fatalf("NewCredentialEncryptor: %v", err)
	}

	sealed, err := e.Encrypt("eyJhbGciOi.token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if sealed == "eyJhbGciOi.token" {
		t.Fatal("ciphertext equals plaintext")
	}
	again, _ := e.Encrypt("eyJhbGciOi.token")
	if again == sealed {
		t.Error("nonces should differ between encryptions")
	}

	opened, err := e.Decrypt(sealed)
	if err != nil || opened != "eyJhbGciOi.token" {
		t.Fatalf("Decrypt = %q, %v", opened, err)
	}

	if got, _ := e.Encrypt(""); got != "" {
		t.Errorf("empty plaintext sealed to %q", got)
	}

	other, _ := NewCredentialEncryptor(testKey('x'))
	if _, err := other.Decrypt(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key err = %v, want ErrDecryptionFailed", err)
	}
	if _, err := e.Decrypt("AAAA"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("short data err = %v, want ErrInvalidCiphertext", err)
	}
}

func TestBadgerStoreSealsRefreshToken(t *testing.T) {
	store, err := Open("", true)
	if err != nil {
		t.Fatalf("Open in-memory: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	e, err := NewCredentialEncryptor(testKey('k'))
	if err != nil {
		t.Fatalf("NewCredentialEncryptor: %v", err)
	}
	store.SetEncryptor(e)

	creds := map[string]string{"steam_id": "76561197960287930", "refresh_token": "secret-token"}
	if err := store.SaveCredentials(ctx, creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	if creds["refresh_token"] != "secret-token" {
		t.Error("SaveCredentials modified the caller's map")
	}

	var raw map[string]string
	err = store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credentialsKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &raw) })
	})
	if err != nil {
		t.Fatalf("read raw credentials: %v", err)
	}
	if raw["refresh_token"] == "secret-token" || raw["steam_id"] != "76561197960287930" {
		t.Errorf("raw stored credentials = %v", raw)
	}

	got, err := store.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got["refresh_token"] != "secret-token" {
		t.Errorf("refresh_token = %q", got["refresh_token"])
	}

	other, _ := NewCredentialEncryptor(testKey('x'))
	store.SetEncryptor(other)
	if _, err := store.LoadCredentials(ctx); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("LoadCredentials with wrong key err = %v, want ErrDecryptionFailed", err)
	}
}
