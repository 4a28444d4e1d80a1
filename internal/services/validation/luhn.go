package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShiraazMoollatjie/goluhn"
)

const ReferralCodeLength = 8

var ErrInvalidReferralCode = errors.New("invalid referral code")

func LuhnValidate(number string) error {
	if err := goluhn.Validate(number); err != nil {
		return fmt.Errorf("luhn validation failed: %w", err)
	}

	return nil
}

// ValidateReferralCode accepts only 8-digit Luhn-valid codes.
func ValidateReferralCode(code string) error {
	code = strings.TrimSpace(code)
	if len(code) != ReferralCodeLength {
		return ErrInvalidReferralCode
	}

	if err := LuhnValidate(code); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReferralCode, err)
	}

	return nil
}

func GenerateReferralCode() string {
	return goluhn.Generate(ReferralCodeLength)
}
