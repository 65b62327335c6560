package enums

import "fmt"

// DocumentType maps to the document_type_enum enum in Postgres.
type DocumentType string

const (
	DocumentTypeTermsOfService  DocumentType = "terms_of_service"
	DocumentTypePrivacyPolicy   DocumentType = "privacy_policy"
	DocumentTypeMarketingPolicy DocumentType = "marketing_policy"
	DocumentTypePersonalizedAds DocumentType = "personalized_ads"
)

var validDocumentTypes = []DocumentType{
	DocumentTypeTermsOfService,
	DocumentTypePrivacyPolicy,
	DocumentTypeMarketingPolicy,
	DocumentTypePersonalizedAds,
}

// IsValid reports whether the value matches the canonical document type enum.
func (d DocumentType) IsValid() bool {
	for _, candidate := range validDocumentTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDocumentType converts raw input into DocumentType.
func ParseDocumentType(value string) (DocumentType, error) {
	for _, candidate := range validDocumentTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid document type %q", value)
}
