package registration

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/opalhealth/backend/pkg/common/models"
	"github.com/opalhealth/backend/pkg/common/validation"
)

// CodeSuffixLength is the number of random characters appended to the
// institution code.
const CodeSuffixLength = 10

const codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode builds a registration code: the institution code followed by
// a random alphanumeric suffix. Uniqueness is guaranteed by the storage
// layer; a collision there means generate again.
func GenerateCode(institutionCode string) (string, error) {
	suffix := make([]byte, CodeSuffixLength)
	for i := range suffix {
		index, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", fmt.Errorf("generate registration code: %w", err)
		}
		suffix[i] = codeCharset[index.Int64()]
	}
	return institutionCode + string(suffix), nil
}

// GenerateVerificationCode returns a six digit code for out-of-band
// verification before redemption.
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// CheckRedeemable decides whether a registration code may still be
// redeemed. Redemption is strictly single-use: anything but a NEW code
// within its validity window is rejected.
func CheckRedeemable(code models.RegistrationCode, now time.Time, validity time.Duration) error {
	switch code.Status {
	case models.RegistrationCodeStatusNew:
	case models.RegistrationCodeStatusRegistered:
		return validation.FieldErrors{"code": {"this registration code has already been used"}}
	case models.RegistrationCodeStatusBlocked:
		return validation.FieldErrors{"code": {"this registration code is blocked"}}
	default:
		return validation.FieldErrors{"code": {"this registration code has expired"}}
	}
	if now.After(code.CreatedAt.Add(validity)) {
		return validation.FieldErrors{"code": {"this registration code has expired"}}
	}
	return nil
}
