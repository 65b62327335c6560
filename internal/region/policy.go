package region

import "github.com/miraelabs/consentry-backend/pkg/enums"

// HoursWindow is a [Start, End) clock-hour window. End smaller than Start
// means the window wraps past midnight.
type HoursWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether the given clock hour falls inside the window.
func (w HoursWindow) Contains(hour int) bool {
	if w.Start == w.End {
		return false
	}
	if w.Start < w.End {
		return hour >= w.Start && hour < w.End
	}
	return hour >= w.Start || hour < w.End
}

// Requirement describes one consent slot a region's law expects the product
// to offer.
type Requirement struct {
	ConsentType    enums.ConsentType  `json:"consent_type"`
	Required       bool               `json:"required"`
	DocumentType   enums.DocumentType `json:"document_type,omitempty"`
	LabelKey       string             `json:"label_key"`
	DescriptionKey string             `json:"description_key,omitempty"`
	NightHours     *HoursWindow       `json:"night_hours,omitempty"`
}

// Policy is the full consent posture for one jurisdiction.
type Policy struct {
	Region               enums.RegionCode `json:"region"`
	LawName              string           `json:"law_name"`
	NightPushRestriction *HoursWindow     `json:"night_push_restriction,omitempty"`
	Requirements         []Requirement    `json:"requirements"`
}

// baselineRequirements are present in every region; terms and privacy can
// never be declined.
func baselineRequirements() []Requirement {
	return []Requirement{
		{
			ConsentType:    enums.ConsentTypeTermsOfService,
			Required:       true,
			DocumentType:   enums.DocumentTypeTermsOfService,
			LabelKey:       "consent.terms_of_service.label",
			DescriptionKey: "consent.terms_of_service.description",
		},
		{
			ConsentType:    enums.ConsentTypePrivacyPolicy,
			Required:       true,
			DocumentType:   enums.DocumentTypePrivacyPolicy,
			LabelKey:       "consent.privacy_policy.label",
			DescriptionKey: "consent.privacy_policy.description",
		},
	}
}

func marketingRequirements(night *HoursWindow) []Requirement {
	return []Requirement{
		{
			ConsentType:    enums.ConsentTypeMarketingEmail,
			DocumentType:   enums.DocumentTypeMarketingPolicy,
			LabelKey:       "consent.marketing_email.label",
			DescriptionKey: "consent.marketing_email.description",
		},
		{
			ConsentType:    enums.ConsentTypeMarketingPush,
			DocumentType:   enums.DocumentTypeMarketingPolicy,
			LabelKey:       "consent.marketing_push.label",
			DescriptionKey: "consent.marketing_push.description",
		},
		{
			ConsentType:    enums.ConsentTypeMarketingSMS,
			DocumentType:   enums.DocumentTypeMarketingPolicy,
			LabelKey:       "consent.marketing_sms.label",
			DescriptionKey: "consent.marketing_sms.description",
		},
		{
			ConsentType:    enums.ConsentTypeNightPush,
			LabelKey:       "consent.night_push.label",
			DescriptionKey: "consent.night_push.description",
			NightHours:     night,
		},
	}
}

func adsRequirement() Requirement {
	return Requirement{
		ConsentType:    enums.ConsentTypePersonalizedAds,
		DocumentType:   enums.DocumentTypePersonalizedAds,
		LabelKey:       "consent.personalized_ads.label",
		DescriptionKey: "consent.personalized_ads.description",
	}
}

// policies is built once at package load and read concurrently without
// locking afterwards.
var policies = buildPolicies()

func buildPolicies() map[enums.RegionCode]Policy {
	krNight := &HoursWindow{Start: 21, End: 8}
	jpNight := &HoursWindow{Start: 22, End: 7}
	defaultNight := &HoursWindow{Start: 20, End: 9}

	kr := Policy{
		Region:               enums.RegionKR,
		LawName:              "정보통신망법 / 개인정보보호법",
		NightPushRestriction: krNight,
		Requirements:         append(baselineRequirements(), marketingRequirements(krNight)...),
	}

	jp := Policy{
		Region:               enums.RegionJP,
		LawName:              "個人情報保護法 (APPI)",
		NightPushRestriction: jpNight,
		Requirements: append(
			append(baselineRequirements(), marketingRequirements(jpNight)...),
			adsRequirement(),
		),
	}

	eu := Policy{
		Region:  enums.RegionEU,
		LawName: "GDPR / ePrivacy Directive",
		Requirements: append(
			append(baselineRequirements(), marketingRequirements(nil)...),
			adsRequirement(),
		),
	}

	us := Policy{
		Region:  enums.RegionUS,
		LawName: "CCPA / CAN-SPAM",
		Requirements: append(
			append(baselineRequirements(), marketingRequirements(nil)...),
			adsRequirement(),
		),
	}

	// DEFAULT is the most restrictive posture: every optional consent is
	// offered and the night window is the widest, so unresolvable regions
	// fail closed.
	def := Policy{
		Region:               enums.RegionDefault,
		LawName:              "Global baseline policy",
		NightPushRestriction: defaultNight,
		Requirements: append(
			append(baselineRequirements(), marketingRequirements(defaultNight)...),
			adsRequirement(),
		),
	}

	return map[enums.RegionCode]Policy{
		enums.RegionKR:      kr,
		enums.RegionJP:      jp,
		enums.RegionEU:      eu,
		enums.RegionUS:      us,
		enums.RegionDefault: def,
	}
}

// PolicyFor returns the policy for a region, falling back to DEFAULT for
// anything the table does not know.
func PolicyFor(code enums.RegionCode) Policy {
	if policy, ok := policies[code]; ok {
		return policy
	}
	return policies[enums.RegionDefault]
}

// PolicyForLocale is the common resolve-then-lookup composition.
func PolicyForLocale(locale string) Policy {
	return PolicyFor(ResolveRegion(locale))
}

// RequirementFor finds the policy entry for a consent type. The second return
// is false when the policy does not mention the type.
func (p Policy) RequirementFor(consentType enums.ConsentType) (Requirement, bool) {
	for _, req := range p.Requirements {
		if req.ConsentType == consentType {
			return req, true
		}
	}
	return Requirement{}, false
}

// RequiredConsentTypes lists the consent types the region forbids declining.
func (p Policy) RequiredConsentTypes() []enums.ConsentType {
	out := make([]enums.ConsentType, 0, len(p.Requirements))
	for _, req := range p.Requirements {
		if req.Required {
			out = append(out, req.ConsentType)
		}
	}
	return out
}

// DocumentTypes lists the distinct document types referenced by the policy.
func (p Policy) DocumentTypes() []enums.DocumentType {
	seen := make(map[enums.DocumentType]struct{}, len(p.Requirements))
	out := make([]enums.DocumentType, 0, len(p.Requirements))
	for _, req := range p.Requirements {
		if req.DocumentType == "" {
			continue
		}
		if _, ok := seen[req.DocumentType]; ok {
			continue
		}
		seen[req.DocumentType] = struct{}{}
		out = append(out, req.DocumentType)
	}
	return out
}
