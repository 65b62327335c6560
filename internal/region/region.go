package region

import (
	"strings"

	"github.com/miraelabs/consentry-backend/pkg/enums"
)

// localeRegions is the fixed, case-sensitive locale table. Unmatched locales
// resolve to the DEFAULT region.
var localeRegions = map[string]enums.RegionCode{
	"ko":    enums.RegionKR,
	"ko-KR": enums.RegionKR,
	"ja":    enums.RegionJP,
	"ja-JP": enums.RegionJP,
	"de":    enums.RegionEU,
	"de-DE": enums.RegionEU,
	"fr":    enums.RegionEU,
	"fr-FR": enums.RegionEU,
	"it":    enums.RegionEU,
	"it-IT": enums.RegionEU,
	"es":    enums.RegionEU,
	"es-ES": enums.RegionEU,
	"nl":    enums.RegionEU,
	"nl-NL": enums.RegionEU,
	"en-GB": enums.RegionEU,
	"en-US": enums.RegionUS,
	"en":    enums.RegionUS,
}

// regionCountries maps each region to the country recorded on audit rows when
// the locale itself carries no country subtag.
var regionCountries = map[enums.RegionCode]string{
	enums.RegionKR: "KR",
	enums.RegionJP: "JP",
	enums.RegionEU: "EU",
	enums.RegionUS: "US",
}

// ResolveRegion maps a locale tag to its jurisdiction bucket. Total function:
// any unrecognized input yields the DEFAULT region.
func ResolveRegion(locale string) enums.RegionCode {
	if code, ok := localeRegions[locale]; ok {
		return code
	}
	return enums.RegionDefault
}

// CountryCode derives the audit country for a locale. The country subtag wins
// when present ("ko-KR" -> "KR"); otherwise the curated region table decides,
// falling back to the uppercased language tag for locales outside the table.
func CountryCode(locale string) string {
	if idx := strings.IndexByte(locale, '-'); idx >= 0 && len(locale) >= idx+3 {
		return strings.ToUpper(locale[idx+1 : idx+3])
	}
	if country, ok := regionCountries[ResolveRegion(locale)]; ok {
		return country
	}
	trimmed := strings.TrimSpace(locale)
	if len(trimmed) >= 2 {
		return strings.ToUpper(trimmed[:2])
	}
	return ""
}
