package password

import (
	"strings"
	"testing"
)

func TestValidateStrengthAccepts(t *testing.T) {
	res := ValidateStrength("Str0ng!Passw0rd", 8)
	if !res.OK {
		t.Fatalf("expected valid, got violations: %v", res.Violations)
	}
}

func TestValidateStrengthCollectsAllViolations(t *testing.T) {
	// Too short, no upper, no digit, no special.
	res := ValidateStrength("abc", 8)
	if res.OK {
		t.Fatal("expected invalid")
	}
	if len(res.Violations) != 4 {
		t.Fatalf("expected 4 violations, got %d: %v", len(res.Violations), res.Violations)
	}
}

func TestValidateStrengthRejectsCommonPasswords(t *testing.T) {
	for _, pw := range []string{"password", "PASSWORD", "Password1"} {
		res := ValidateStrength(pw, 8)
		if res.OK {
			t.Fatalf("expected %q to be rejected", pw)
		}
		var found bool
		for _, v := range res.Violations {
			if strings.Contains(v, "too common") {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected common-password violation for %q, got %v", pw, res.Violations)
		}
	}
}

func TestValidateStrengthIsPure(t *testing.T) {
	first := ValidateStrength("Tr1cky!pass", 10)
	second := ValidateStrength("Tr1cky!pass", 10)
	if first.OK != second.OK || len(first.Violations) != len(second.Violations) {
		t.Fatalf("validation is not idempotent: %v vs %v", first, second)
	}
}

func TestGenerateLengthAndAlphabet(t *testing.T) {
	pw, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(pw) != 16 {
		t.Fatalf("expected default length 16, got %d", len(pw))
	}
	for _, r := range pw {
		if !strings.ContainsRune(generatorAlphabet, r) {
			t.Fatalf("generated password contains %q outside alphabet", r)
		}
	}

	long, err := Generate(32)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(long) != 32 {
		t.Fatalf("expected length 32, got %d", len(long))
	}
	if long == pw[:16] {
		t.Fatal("two generated passwords should not collide")
	}
}

func TestHashRoundTrip(t *testing.T) {
	// Low cost keeps the test fast; the default stays 12 in production.
	hash, err := Hash("Corr3ct!Horse", 4)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !Verify(hash, "Corr3ct!Horse") {
		t.Fatal("expected verification to succeed for original password")
	}
	if Verify(hash, "wrong-password") {
		t.Fatal("expected verification to fail for different password")
	}
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	if _, err := Hash("", 4); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestVerifyEmptyInputs(t *testing.T) {
	if Verify("", "x") || Verify("hash", "") {
		t.Fatal("empty hash or password must not verify")
	}
}
