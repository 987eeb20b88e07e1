package acquire

import (
	"strings"
	"unicode"
)

const fallbackObjectName = "attachment"

// SanitizeFilename keeps letters, digits, '.', '_', '-' and spaces. It is
// idempotent.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// StorageKey returns "{opportunityID}/{sanitized filename}". When the name
// sanitizes to nothing usable the resource id stands in for it.
func StorageKey(opportunityID, filename, resourceID string) string {
	name := SanitizeFilename(filename)
	if !usableName(name) {
		name = SanitizeFilename(resourceID)
	}
	if !usableName(name) {
		name = fallbackObjectName
	}
	return opportunityID + "/" + name
}

func usableName(name string) bool {
	return strings.Trim(name, ". ") != ""
}
