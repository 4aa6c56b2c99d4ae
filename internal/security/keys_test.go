package security

import (
	"crypto/rsa"
	"os"
	"path/filepath"
	"testing"
)

func TestParsePrivateKey_InlinePEM(t *testing.T) {
	signer, err := ParsePrivateKey(testPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if signer == nil {
		t.Fatal("ParsePrivateKey returned nil signer")
	}
	if _, ok := signer.Public().(*rsa.PublicKey); !ok {
		t.Errorf("public key type = %T, want *rsa.PublicKey", signer.Public())
	}
}

func TestParsePublicKey_InlinePEM(t *testing.T) {
	pub, err := ParsePublicKey(testPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if KeyAlg(pub) != "RS256" {
		t.Errorf("KeyAlg = %q, want RS256", KeyAlg(pub))
	}
}

func TestParsePrivateKey_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, []byte(testPrivateKeyPEM), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ParsePrivateKey(path); err != nil {
		t.Fatalf("ParsePrivateKey from file: %v", err)
	}
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	for _, s := range []string{"", "not-a-key", "-----BEGIN GARBAGE-----\nZm9v\n-----END GARBAGE-----"} {
		if _, err := ParsePrivateKey(s); err == nil {
			t.Errorf("ParsePrivateKey(%q) should fail", s)
		}
	}
}

func TestParsePublicKey_Invalid(t *testing.T) {
	if _, err := ParsePublicKey("nope"); err == nil {
		t.Error("ParsePublicKey with non-PEM input should fail")
	}
}

func TestKeyAlg_Unknown(t *testing.T) {
	if alg := KeyAlg("not a key"); alg != "" {
		t.Errorf("KeyAlg for unknown type = %q, want empty", alg)
	}
}
