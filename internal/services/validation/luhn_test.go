package validation

import "testing"

func TestValidateReferralCode(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"00000018", true},
		{"79927397", false},
		{"00000019", false},
		{"0000018", false},
		{"abcdefgh", false},
		{"", false},
	}

	for _, tt := range tests {
		err := ValidateReferralCode(tt.code)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateReferralCode(%q) = %v, want valid=%v", tt.code, err, tt.valid)
		}
	}
}

func TestGenerateReferralCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := GenerateReferralCode()
		if err := ValidateReferralCode(code); err != nil {
			t.Fatalf("generated code %q is invalid: %v", code, err)
		}
	}
}
