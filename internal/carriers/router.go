package carriers

import (
	"strings"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

// known country codes, checked in order before the two digit fallback
var knownPrefixes = []string{"47", "44", "46", "45", "49", "33", "39", "34"}

// Prefix extracts the country style prefix ("+47", "+1", ...) of phone.
// It returns "" when the number has fewer than two digits.
func Prefix(phone string) string {
	d := model.Digits(phone)
	if strings.HasPrefix(d, "1") && len(d) >= 11 {
		return "+1"
	}
	for _, p := range knownPrefixes {
		if strings.HasPrefix(d, p) {
			return "+" + p
		}
	}
	if len(d) >= 2 {
		return "+" + d[:2]
	}
	return ""
}

// Resolve picks the carrier key for a destination. A region entry in the
// tenant's map beats the map default, which beats the single configured
// carrier. Everything else goes to the stub.
func Resolve(tenant *model.Tenant, phone string) string {
	if tenant == nil {
		return KeyStub
	}
	if len(tenant.SmsProviders) > 0 {
		if p := Prefix(phone); p != "" {
			if key := tenant.SmsProviders[p]; key != "" {
				return key
			}
		}
		if key := tenant.SmsProviders[model.DefaultCarrierKey]; key != "" {
			return key
		}
	}
	if tenant.SmsProvider != "" {
		return tenant.SmsProvider
	}
	return KeyStub
}
