package passphrase

import "testing"

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("VAULT_TEST_PASS", "correct horse")
	src := NewSource("VAULT_TEST_PASS", "")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "correct horse" {
		t.Fatalf("passphrase = %q", got)
	}
	t.Setenv("VAULT_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "correct horse" {
		t.Fatalf("expected cached passphrase, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("VAULT_TEST_PASS", "   ")
	if _, err := NewSource("VAULT_TEST_PASS", "signer").Get(); err == nil {
		t.Fatalf("expected blank passphrase to be rejected")
	}
}
