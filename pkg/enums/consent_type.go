package enums

import "fmt"

// ConsentType maps to the consent_type_enum enum in Postgres.
type ConsentType string

const (
	ConsentTypeTermsOfService  ConsentType = "terms_of_service"
	ConsentTypePrivacyPolicy   ConsentType = "privacy_policy"
	ConsentTypeMarketingEmail  ConsentType = "marketing_email"
	ConsentTypeMarketingPush   ConsentType = "marketing_push"
	ConsentTypeMarketingSMS    ConsentType = "marketing_sms"
	ConsentTypePersonalizedAds ConsentType = "personalized_ads"
	ConsentTypeNightPush       ConsentType = "night_push"
)

var validConsentTypes = []ConsentType{
	ConsentTypeTermsOfService,
	ConsentTypePrivacyPolicy,
	ConsentTypeMarketingEmail,
	ConsentTypeMarketingPush,
	ConsentTypeMarketingSMS,
	ConsentTypePersonalizedAds,
	ConsentTypeNightPush,
}

// IsValid reports whether the value matches the canonical consent type enum.
func (c ConsentType) IsValid() bool {
	for _, candidate := range validConsentTypes {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConsentType converts raw input into ConsentType.
func ParseConsentType(value string) (ConsentType, error) {
	for _, candidate := range validConsentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consent type %q", value)
}
