package intent

import (
	"fmt"
	"regexp"
	"strings"

	"tripbot/internal/domain"
)

var datePartsRe = regexp.MustCompile(`(\d{4})[-/年](\d{1,2})[-/月](\d{1,2})`)

type extractor struct {
	destination []*regexp.Regexp
	dateRange   *regexp.Regexp
	budget      *regexp.Regexp
	budgetUnit  string
	preferences []*regexp.Regexp
	separators  []string
	styles      groupMatcher
	diets       groupMatcher
}

func newExtractor(r ExtractionRules) (extractor, error) {
	e := extractor{
		budgetUnit: r.BudgetUnit,
		separators: r.PreferenceSeparators,
		styles:     newGroupMatcher(r.Styles),
		diets:      newGroupMatcher(r.Diets),
	}
	var err error
	if e.destination, err = compilePatterns("destination", r.Destination); err != nil {
		return e, err
	}
	if e.preferences, err = compilePatterns("preferences", r.Preferences); err != nil {
		return e, err
	}
	if r.DateRange != "" {
		if e.dateRange, err = compile("date range", 0, r.DateRange); err != nil {
			return e, err
		}
	}
	if r.Budget != "" {
		if e.budget, err = compile("budget", 0, r.Budget); err != nil {
			return e, err
		}
	}
	return e, nil
}

// ExtractProfile pulls whatever travel facts one utterance states. Each
// field is matched independently and left nil when absent.
func (c *Classifier) ExtractProfile(text string) domain.ProfileUpdate {
	e := c.extract
	lower := strings.ToLower(text)
	var u domain.ProfileUpdate

	if dest, ok := (slotMatcher{patterns: e.destination}).first(text); ok {
		u.Destination = &dest
	}
	if e.dateRange != nil {
		if g := e.dateRange.FindStringSubmatch(text); len(g) == 3 {
			u.TravelDates = &domain.DateRange{Start: NormalizeDate(g[1]), End: NormalizeDate(g[2])}
		}
	}
	if e.budget != nil {
		if g := e.budget.FindStringSubmatch(text); len(g) > 1 && g[1] != "" {
			b := g[1] + e.budgetUnit
			u.Budget = &b
		}
	}
	if style := e.styles.first(lower); style != "" {
		u.TravelStyle = &style
	}
	if diets := e.diets.all(lower); len(diets) > 0 {
		u.DietaryRestrictions = diets
	}
	for _, re := range e.preferences {
		if g := re.FindStringSubmatch(text); len(g) > 1 {
			if prefs := splitList(g[1], e.separators); len(prefs) > 0 {
				u.Preferences = prefs
				break
			}
		}
	}
	return u
}

// NormalizeDate rewrites 2024/5/1 and 2024年5月1日 as 2024-05-01. Input
// without a recognizable date is returned unchanged.
func NormalizeDate(s string) string {
	g := datePartsRe.FindStringSubmatch(s)
	if g == nil {
		return s
	}
	return fmt.Sprintf("%04d-%02d-%02d", atoi(g[1]), atoi(g[2]), atoi(g[3]))
}
