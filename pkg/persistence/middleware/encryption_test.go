package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/autotron/pkg/adapters/memory"
	"github.com/aretw0/autotron/pkg/domain"
	"github.com/aretw0/autotron/pkg/persistence/middleware"
	"github.com/aretw0/autotron/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secure(t *testing.T, store ports.GraphStore, cfg middleware.EncryptionConfig) ports.GraphStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return mw(store)
}

func porch(token string) *domain.Document {
	return &domain.Document{Nodes: []domain.NodeSpec{{
		ID:   "hook",
		Name: "constant",
		Data: domain.NodeData{Properties: map[string]any{"value": token}},
	}}}
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secureStore := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	if err := secureStore.Save(ctx, "porch", porch("my-secret-sauce")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlying.Load(ctx, "porch")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	raw, _ := stored.Marshal()
	if strings.Contains(string(raw), "my-secret-sauce") {
		t.Fatalf("Expected secret to be hidden, found: %s", raw)
	}
	if stored.Nodes[0].Name != middleware.EnvelopeType {
		t.Fatalf("Expected envelope node, got %q", stored.Nodes[0].Name)
	}

	loaded, err := secureStore.Load(ctx, "porch")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Nodes[0].Data.Properties["value"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Nodes[0].Data.Properties["value"])
	}

	names, err := secureStore.List(ctx)
	if err != nil || len(names) != 1 || names[0] != "porch" {
		t.Errorf("List = %v, %v", names, err)
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunGraphStoreContract(t, secure(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureOld := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := secureOld.Save(ctx, "porch", porch("encrypted-with-old-key")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureNew := secure(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := secureNew.Load(ctx, "porch")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Nodes[0].Data.Properties["value"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	if err := secureNew.Save(ctx, "porch", porch("encrypted-with-new-key")); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureOld.Load(ctx, "porch"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RefusesPlainDocuments(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	if err := underlying.Save(ctx, "porch", porch("plain")); err != nil {
		t.Fatal(err)
	}

	_, err := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Load(ctx, "porch")
	if err == nil {
		t.Fatal("Expected plain document to be refused")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}
}

func TestParseKeys(t *testing.T) {
	active := base64.StdEncoding.EncodeToString(generateKey(t))
	old := base64.StdEncoding.EncodeToString(generateKey(t))

	cfg, err := middleware.ParseKeys(active, old)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.ActiveKey) != 32 || len(cfg.FallbackKeys) != 1 {
		t.Errorf("unexpected config: %d active bytes, %d fallbacks", len(cfg.ActiveKey), len(cfg.FallbackKeys))
	}

	if _, err := middleware.ParseKeys("not base64!"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
