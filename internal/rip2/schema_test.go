package rip2

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSchemaProviderLoadsLazily(t *testing.T) {
	p := NewSchemaProvider(writeSchemaFile(t))
	if p.State() != SchemaUnloaded {
		t.Errorf("state before first use = %v, want unloaded", p.State())
	}
	if _, err := p.RangeImageType(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.State() != SchemaLoaded {
		t.Errorf("state after load = %v, want loaded", p.State())
	}
}

func TestSchemaProviderCachesFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pb")
	p := NewSchemaProvider(path)

	_, err := p.RangeImageType()
	if kind, ok := DecodeKindOf(err); !ok || kind != KindSchemaUnavailable {
		t.Fatalf("got %v, want schema-unavailable", err)
	}
	if p.State() != SchemaLoadFailed {
		t.Errorf("state = %v, want load-failed", p.State())
	}

	// Install the file; without a reload the cached failure still wins.
	raw, err := MarshalCanonicalSchema()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := p.RangeImageType(); err == nil {
		t.Fatal("cached failure was retried without Reload")
	}

	p.Reload()
	if _, err := p.RangeImageType(); err != nil {
		t.Fatalf("load after reload: %v", err)
	}
	if p.State() != SchemaLoaded {
		t.Errorf("state after reload = %v, want loaded", p.State())
	}
}

func TestSchemaProviderRejectsGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pb")
	if err := os.WriteFile(path, []byte("not a descriptor set at all, definitely text"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewSchemaProvider(path)
	_, err := p.RangeImageType()
	if kind, ok := DecodeKindOf(err); !ok || kind != KindSchemaUnavailable {
		t.Errorf("got %v, want schema-unavailable", err)
	}
}

func TestSchemaProviderEmptyPath(t *testing.T) {
	p := NewSchemaProvider("")
	if _, err := p.RangeImageType(); err == nil {
		t.Error("expected error for empty schema path")
	}
}

func TestDecoderReportsSchemaUnavailable(t *testing.T) {
	d := NewDecoder(NewSchemaProvider(filepath.Join(t.TempDir(), "missing.pb")))
	pkt := WrapFrame([]byte{}, true)
	_, err := d.Decode(pkt)
	if kind, ok := DecodeKindOf(err); !ok || kind != KindSchemaUnavailable {
		t.Errorf("got %v, want schema-unavailable", err)
	}
}
