// Package entity tags dates, money amounts, people, organizations, and
// locations in plain text using regular expressions and capitalization
// heuristics.
package entity

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Type classifies an extracted entity.
type Type string

const (
	TypeDate         Type = "date"
	TypeMoney        Type = "money"
	TypePerson       Type = "person"
	TypeOrganization Type = "organization"
	TypeLocation     Type = "location"
)

// AllTypes lists every supported entity type, in output order.
func AllTypes() []Type {
	return []Type{TypeDate, TypeMoney, TypePerson, TypeOrganization, TypeLocation}
}

// Entity is a single tagged span.
type Entity struct {
	Type       Type    `json:"type"`
	Text       string  `json:"text"`
	Value      any     `json:"value,omitempty"` // normalized form: ISO date, float amount
	Confidence float64 `json:"confidence"`
}

var (
	// Jan 22 2013 / January 22, 2013
	monthDatePattern = regexp.MustCompile(`(?i)\b(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)
	// 01/22/2013, 22-01-2013
	slashDatePattern = regexp.MustCompile(`\b\d{1,2}[-/]\d{1,2}[-/]\d{2,4}\b`)
	// 2013-01-22
	isoDatePattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

	// $1,234.56
	moneyPattern = regexp.MustCompile(`\$\s*\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)
	// 1.5%
	percentPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?%`)

	// Two or more capitalized words, possibly joined by connectives.
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+(?:of|the|de|van|von)\s+|\s+)(?:[A-Z][a-zA-Z.]+\s*)+`)
)

var dateLayouts = []string{
	"Jan 2 2006",
	"January 2 2006",
	"01/02/2006",
	"01/02/06",
	"2-1-2006",
	"2006-01-02",
}

// Extractor tags entities in text. The zero value is ready to use.
type Extractor struct {
	filter Filter
}

// New creates an Extractor with the default noise filter.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the entities found in text, restricted to types when
// non-empty. Duplicate (type, text) pairs are collapsed, keeping the higher
// confidence. Empty text yields nil.
func (e *Extractor) Extract(text string, types []Type) []Entity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	want := make(map[Type]bool)
	if len(types) == 0 {
		for _, t := range AllTypes() {
			want[t] = true
		}
	} else {
		for _, t := range types {
			want[t] = true
		}
	}

	var out []Entity
	if want[TypeDate] {
		out = append(out, e.dates(text)...)
	}
	if want[TypeMoney] {
		out = append(out, e.money(text)...)
	}
	if want[TypePerson] || want[TypeOrganization] || want[TypeLocation] {
		for _, ent := range e.namedEntities(text) {
			if want[ent.Type] {
				out = append(out, ent)
			}
		}
	}
	return dedupe(out)
}

func (e *Extractor) dates(text string) []Entity {
	var out []Entity
	seen := make(map[string]bool)
	for _, p := range []*regexp.Regexp{monthDatePattern, slashDatePattern, isoDatePattern} {
		for _, m := range p.FindAllString(text, -1) {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, Entity{
				Type:       TypeDate,
				Text:       m,
				Value:      normalizeDate(m),
				Confidence: 0.9,
			})
		}
	}
	return out
}

// normalizeDate attempts to render the matched text as an ISO date.
// Returns nil when no layout fits.
func normalizeDate(s string) any {
	cleaned := strings.NewReplacer(",", "", "st ", " ", "nd ", " ", "rd ", " ", "th ", " ").Replace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return nil
}

func (e *Extractor) money(text string) []Entity {
	var out []Entity
	seen := make(map[string]bool)
	for _, p := range []*regexp.Regexp{moneyPattern, percentPattern} {
		for _, m := range p.FindAllString(text, -1) {
			if seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, Entity{
				Type:       TypeMoney,
				Text:       m,
				Value:      normalizeAmount(m),
				Confidence: 0.95,
			})
		}
	}
	return out
}

func normalizeAmount(s string) any {
	cleaned := strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(s)
	if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return v
	}
	return nil
}

// namedEntities finds multi-word capitalized spans and classifies them with
// keyword heuristics. Confidence is lower than the pattern matchers since
// capitalization alone is a weak signal.
func (e *Extractor) namedEntities(text string) []Entity {
	var out []Entity
	for _, m := range properNounPattern.FindAllString(text, -1) {
		span := strings.TrimSpace(m)
		t := classify(span)
		if !e.filter.Keep(span, t) {
			continue
		}
		out = append(out, Entity{
			Type:       e.filter.Reclassify(span, t),
			Text:       span,
			Value:      span,
			Confidence: 0.85,
		})
	}
	return out
}

var (
	orgKeywords = []string{
		"inc", "corp", "llc", "ltd", "company", "corporation", "group",
		"university", "institute", "bank", "agency", "ministry",
		"department", "committee", "association", "foundation",
	}
	locKeywords = []string{
		"city", "county", "province", "state", "republic", "kingdom",
		"island", "river", "valley", "district", "street", "avenue",
		"governorate",
	}
	personTitles = []string{
		"mr", "mrs", "ms", "dr", "prof", "president", "director",
		"minister", "ceo", "chairman",
	}
)

// classify picks a type for a capitalized span. Organization and location
// keywords win over the person default; titled names are always people.
func classify(span string) Type {
	lower := strings.ToLower(span)
	for _, t := range personTitles {
		if strings.HasPrefix(lower, t+" ") || strings.HasPrefix(lower, t+". ") {
			return TypePerson
		}
	}
	for _, k := range orgKeywords {
		if containsWord(lower, k) {
			return TypeOrganization
		}
	}
	for _, k := range locKeywords {
		if containsWord(lower, k) {
			return TypeLocation
		}
	}
	return TypePerson
}

func containsWord(s, word string) bool {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.'
	}) {
		if f == word {
			return true
		}
	}
	return false
}

// dedupe collapses duplicate (type, text) pairs keeping the higher
// confidence, preserving first-seen order.
func dedupe(entities []Entity) []Entity {
	index := make(map[string]int)
	out := entities[:0]
	for _, ent := range entities {
		key := string(ent.Type) + "\x00" + ent.Text
		if i, ok := index[key]; ok {
			if ent.Confidence > out[i].Confidence {
				out[i] = ent
			}
			continue
		}
		index[key] = len(out)
		out = append(out, ent)
	}
	return out
}
