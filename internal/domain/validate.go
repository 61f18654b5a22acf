package domain

import "regexp"

// Token ids are canonical UUID text; order ids are gateway-issued opaque
// ASCII. Both gates run before any storage lookup so malformed input never
// turns into store traffic.
var (
	tokenIDPattern = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,64}$`)
)

// IsValidTokenID reports whether id is a canonical UUID string.
func IsValidTokenID(id string) bool {
	return tokenIDPattern.MatchString(id)
}

// IsValidOrderID reports whether id looks like a gateway order id.
func IsValidOrderID(id string) bool {
	return orderIDPattern.MatchString(id)
}
