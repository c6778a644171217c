package sha256

import (
	"errors"
	"testing"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte(`{"spez":{}}`))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}
	again, _ := h.Hash([]byte(`{"spez":{}}`))
	if again != got {
		t.Fatalf("expected deterministic hash, got %s vs %s", got, again)
	}
}

func TestHasherHashKnownVector(t *testing.T) {
	t.Parallel()

	got, _ := New().Hash(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestHasherVerify(t *testing.T) {
	t.Parallel()

	h := New()
	body := []byte(`{"t3_abc":{"title":"hello"}}`)
	digest, _ := h.Hash(body)

	if err := h.Verify(body, digest); err != nil {
		t.Fatalf("Verify() on unchanged body error = %v", err)
	}
	err := h.Verify(append(body, ' '), digest)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
}
