// internal/phone/phone.go
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"

	appErrors "github.com/unclebandit/voiceops-backend/internal/errors"
)

// Normalize parses raw using defaultRegion for numbers without a country
// code and returns the E.164 form. Numbers are checked for a plausible
// length only, so reserved ranges used in testing are accepted.
func Normalize(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", appErrors.ErrInvalidPhone)
	}
	if defaultRegion == "" {
		defaultRegion = "US"
	}

	parsed, err := phonenumbers.Parse(raw, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", appErrors.ErrInvalidPhone, raw, err)
	}
	if !phonenumbers.IsPossibleNumber(parsed) {
		return "", fmt.Errorf("%w: %q", appErrors.ErrInvalidPhone, raw)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}
