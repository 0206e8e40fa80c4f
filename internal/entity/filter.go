package entity

import (
	"regexp"
	"strings"
)

// skuPattern matches product/SKU codes that the capitalization heuristic
// tends to misread as organizations.
var skuPattern = regexp.MustCompile(`^[A-Z]{3}-[A-Z]{2}-\d{4}$`)

// Filter drops obvious extraction noise. The zero value is ready to use.
type Filter struct{}

// Keep reports whether the span is worth emitting at all.
func (Filter) Keep(span string, _ Type) bool {
	cleaned := strings.TrimSpace(span)
	if len(cleaned) <= 1 {
		return false
	}
	if strings.ContainsAny(span, "\n\r") {
		return false
	}
	if isDigits(cleaned) {
		return false
	}
	if skuPattern.MatchString(strings.ToUpper(cleaned)) {
		return false
	}
	return true
}

// Reclassify corrects known systematic misclassifications.
func (Filter) Reclassify(span string, t Type) Type {
	if t == TypePerson && strings.Contains(strings.ToLower(span), "governorate") {
		return TypeLocation
	}
	return t
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
