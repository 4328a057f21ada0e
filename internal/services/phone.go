package services

import "github.com/checkfox/go_lead_adapter/internal/models"

// NormalizePhone turns a US/Canada digit string into the 11-digit form with a
// leading country code. Exactly 10 characters get a "1" prepended, exactly 11
// pass through unchanged, any other length is rejected. The input is not
// cleaned: punctuation or whitespace must be stripped by the caller.
func NormalizePhone(raw string) (string, error) {
	switch len(raw) {
	case 10:
		return "1" + raw, nil
	case 11:
		return raw, nil
	default:
		return "", models.NewInvalidPhoneNumberError(raw)
	}
}
