package intent

import (
	"regexp"
	"strings"
)

// Facility is a nearby-facility request. Category is a configured category
// name, or the raw phrase the user used when no category fits.
type Facility struct {
	Matched  bool   `json:"matched"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
	Radius   int    `json:"radius,omitempty"`
}

type facilityCategory struct {
	name     string
	keywords []string
	scan     []string
}

type facilityMatcher struct {
	phrases         slotMatcher
	categories      []facilityCategory
	location        slotMatcher
	defaultLocation string
	radius          *regexp.Regexp
	defaultRadius   int
}

func newFacilityMatcher(r FacilityRules) (facilityMatcher, error) {
	m := facilityMatcher{
		defaultLocation: r.DefaultLocation,
		defaultRadius:   r.DefaultRadius,
	}
	var err error
	if m.phrases, err = newSlotMatcher("facility", SlotRules{Patterns: r.Patterns}); err != nil {
		return m, err
	}
	if m.location, err = newSlotMatcher("facility location", SlotRules{Patterns: r.LocationPatterns}); err != nil {
		return m, err
	}
	if r.RadiusPattern != "" {
		if m.radius, err = compile("facility radius", 0, r.RadiusPattern); err != nil {
			return m, err
		}
	}
	for _, c := range r.Categories {
		fc := facilityCategory{name: c.Name, keywords: lowerAll(c.Keywords), scan: lowerAll(c.Scan)}
		if len(fc.scan) == 0 {
			fc.scan = fc.keywords
		}
		m.categories = append(m.categories, fc)
	}
	return m, nil
}

// match first looks for explicit "near me / where is X" phrasing and
// normalizes the phrase against the category vocabulary, keeping the raw
// phrase when nothing fits. Without such phrasing the whole utterance is
// scanned for a category keyword.
func (m facilityMatcher) match(text string) (Facility, bool) {
	var category string
	if phrase, ok := m.phrases.first(text); ok {
		category = m.categorize(phrase, false)
		if category == "" {
			category = phrase
		}
	} else {
		category = m.categorize(text, true)
	}
	if category == "" {
		return Facility{}, false
	}

	f := Facility{Matched: true, Category: category, Location: m.defaultLocation, Radius: m.defaultRadius}
	if loc, ok := m.location.first(text); ok {
		f.Location = loc
	}
	if m.radius != nil {
		if g := m.radius.FindStringSubmatch(text); len(g) == 3 {
			n := atoi(g[1])
			switch strings.ToLower(g[2]) {
			case "公里", "千米", "km":
				n *= 1000
			}
			if n > 0 {
				f.Radius = n
			}
		}
	}
	return f, true
}

func (m facilityMatcher) categorize(s string, scan bool) string {
	lower := strings.ToLower(s)
	for _, c := range m.categories {
		kws := c.keywords
		if scan {
			kws = c.scan
		}
		if containsAny(lower, kws) {
			return c.name
		}
	}
	return ""
}
