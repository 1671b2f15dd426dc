package digest

import (
	"strings"
	"testing"
)

func TestSupportedSpellings(t *testing.T) {
	for _, algo := range []string{"md5", "sha-1", "sha1", "SHA-1", "sha-256", "sha256", "crc32"} {
		if !Supported(algo) {
			t.Errorf("Supported(%q) = false", algo)
		}
	}
	for _, algo := range []string{"sha-512", "whirlpool", ""} {
		if Supported(algo) {
			t.Errorf("Supported(%q) = true", algo)
		}
	}
}

func TestHexSumKnownVector(t *testing.T) {
	h, err := New("sha-1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Write([]byte("abc"))

	const want = "a9993e364706816aba3e25717850c26c9cd0d89d"
	if got := HexSum(h); got != want {
		t.Fatalf("HexSum = %s, want %s", got, want)
	}
}

func TestSumReader(t *testing.T) {
	got, err := SumReader("md5", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("SumReader: %v", err)
	}
	if want := "5d41402abc4b2a76b9719d911017c592"; got != want {
		t.Fatalf("SumReader = %s, want %s", got, want)
	}

	if _, err := SumReader("nope", strings.NewReader("x")); err == nil {
		t.Fatal("unsupported algorithm should fail")
	}
}
