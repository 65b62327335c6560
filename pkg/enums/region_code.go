package enums

import "fmt"

// RegionCode identifies the jurisdiction bucket a locale resolves to.
type RegionCode string

const (
	RegionKR      RegionCode = "KR"
	RegionJP      RegionCode = "JP"
	RegionEU      RegionCode = "EU"
	RegionUS      RegionCode = "US"
	RegionDefault RegionCode = "DEFAULT"
)

var validRegionCodes = []RegionCode{
	RegionKR,
	RegionJP,
	RegionEU,
	RegionUS,
	RegionDefault,
}

// IsValid reports whether the value matches a known region code.
func (r RegionCode) IsValid() bool {
	for _, candidate := range validRegionCodes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRegionCode converts raw input into RegionCode.
func ParseRegionCode(value string) (RegionCode, error) {
	for _, candidate := range validRegionCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid region code %q", value)
}
