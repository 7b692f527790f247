package media

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// Minimal valid PNG header plus IHDR chunk prefix, enough for sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestDetectImageType(t *testing.T) {
	contentType, err := DetectImageType(pngHeader)
	if err != nil {
		t.Fatalf("DetectImageType: %v", err)
	}
	if contentType != "image/png" {
		t.Fatalf("expected image/png, got %q", contentType)
	}

	if _, err := DetectImageType([]byte("just some text")); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestGravatarURL(t *testing.T) {
	first := GravatarURL("  User@Example.COM ", 250)
	second := GravatarURL("user@example.com", 250)
	if first != second {
		t.Fatalf("expected normalized addresses to agree:\n%s\n%s", first, second)
	}
	if !strings.Contains(first, "s=250") || !strings.Contains(first, "d=identicon") {
		t.Fatalf("unexpected gravatar URL: %s", first)
	}
	if !strings.HasPrefix(first, "https://www.gravatar.com/avatar/") {
		t.Fatalf("unexpected gravatar host: %s", first)
	}
}

func TestAvatarKey(t *testing.T) {
	if got := AvatarKey("abc-123"); got != "avatars/abc-123" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNoopStoreRejectsUploads(t *testing.T) {
	store := NoopStore{}
	if store.Enabled() {
		t.Fatal("noop store must report disabled")
	}
	_, err := store.Upload(context.Background(), "avatars/x", "image/png", bytes.NewReader(pngHeader))
	if !errors.Is(err, ErrStoreDisabled) {
		t.Fatalf("expected ErrStoreDisabled, got %v", err)
	}
}
