package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// slotCutset is trimmed from both ends of every extracted slot.
const slotCutset = " \t\r\n，,。.？?！!：:；;、\"'“”「」"

// Classifier runs the pattern and keyword tables against user text. It
// holds only compiled tables, so one instance may be shared by any number
// of goroutines.
type Classifier struct {
	weather    slotMatcher
	traffic    slotMatcher
	route      slotMatcher
	scenic     slotMatcher
	scenicHere []*regexp.Regexp
	hereValue  string
	facility   facilityMatcher

	itinerary  keywordMatcher
	packing    keywordMatcher
	social     keywordMatcher
	userInfo   keywordMatcher
	analysis   keywordMatcher
	fahrenheit keywordMatcher
	days       []DayOffset

	extract      extractor
	platforms    groupMatcher
	platformDef  string
	postStyles   groupMatcher
	postStyleDef string
	postKeywords *regexp.Regexp
	packStyles   groupMatcher
	packStyleDef string
}

// New compiles rules into a Classifier.
func New(rules Rules) (*Classifier, error) {
	c := &Classifier{
		hereValue:    rules.Scenic.HereValue,
		platformDef:  rules.Social.DefaultPlatform,
		postStyleDef: rules.Social.DefaultStyle,
		packStyleDef: rules.PackingStyles.DefaultStyle,
		platforms:    newGroupMatcher(rules.Social.Platforms),
		postStyles:   newGroupMatcher(rules.Social.Styles),
		packStyles:   newGroupMatcher(rules.PackingStyles.Styles),
	}
	for _, d := range rules.ForecastDays {
		c.days = append(c.days, DayOffset{Name: strings.ToLower(d.Name), Offset: d.Offset})
	}

	var err error
	if c.weather, err = newSlotMatcher("weather", rules.Weather); err != nil {
		return nil, err
	}
	if c.traffic, err = newSlotMatcher("traffic", rules.Traffic); err != nil {
		return nil, err
	}
	if c.route, err = newSlotMatcher("route", rules.Route); err != nil {
		return nil, err
	}
	if c.scenic, err = newSlotMatcher("scenic", SlotRules{Patterns: rules.Scenic.Patterns}); err != nil {
		return nil, err
	}
	if c.scenicHere, err = compilePatterns("scenic here", rules.Scenic.HerePatterns); err != nil {
		return nil, err
	}
	if c.facility, err = newFacilityMatcher(rules.Facility); err != nil {
		return nil, err
	}

	keywordSets := []struct {
		name  string
		rules KeywordRules
		dst   *keywordMatcher
	}{
		{"itinerary", rules.Itinerary, &c.itinerary},
		{"packing", rules.Packing, &c.packing},
		{"social_media", rules.SocialMedia, &c.social},
		{"user_info", rules.UserInfo, &c.userInfo},
		{"image_analysis", rules.ImageAnalysis, &c.analysis},
		{"fahrenheit", rules.Fahrenheit, &c.fahrenheit},
	}
	for _, ks := range keywordSets {
		if *ks.dst, err = newKeywordMatcher(ks.name, ks.rules); err != nil {
			return nil, err
		}
	}

	if c.extract, err = newExtractor(rules.Extraction); err != nil {
		return nil, err
	}
	if rules.Social.KeywordPattern != "" {
		if c.postKeywords, err = compile("social keyword", 0, rules.Social.KeywordPattern); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Weather returns the location of a weather request.
func (c *Classifier) Weather(text string) (string, bool) {
	return c.weather.first(text)
}

// ForecastOffset returns how many days ahead the utterance asks about,
// when it names a day other than today.
func (c *Classifier) ForecastOffset(text string) (int, bool) {
	lower := strings.ToLower(text)
	for _, d := range c.days {
		if d.Name != "" && strings.Contains(lower, d.Name) {
			return d.Offset, true
		}
	}
	return 0, false
}

// WantsFahrenheit reports whether the user asked for Fahrenheit.
func (c *Classifier) WantsFahrenheit(text string) bool {
	return c.fahrenheit.match(text)
}

// Traffic returns the location of a traffic-conditions request.
func (c *Classifier) Traffic(text string) (string, bool) {
	return c.traffic.first(text)
}

// Route returns the origin and destination of a route request. Both must
// be present.
func (c *Classifier) Route(text string) (origin, destination string, ok bool) {
	return c.route.pair(text)
}

// Facility returns the nearby-facility request in text, if any.
func (c *Classifier) Facility(text string) (Facility, bool) {
	return c.facility.match(text)
}

// Scenic returns the attraction the user asks about. "What is this
// place" phrasing yields the configured here-value.
func (c *Classifier) Scenic(text string) (string, bool) {
	if spot, ok := c.scenic.first(text); ok {
		return spot, true
	}
	for _, re := range c.scenicHere {
		if re.MatchString(text) {
			return c.hereValue, true
		}
	}
	return "", false
}

func (c *Classifier) Itinerary(text string) bool   { return c.itinerary.match(text) }
func (c *Classifier) Packing(text string) bool     { return c.packing.match(text) }
func (c *Classifier) SocialMedia(text string) bool { return c.social.match(text) }
func (c *Classifier) UserInfo(text string) bool    { return c.userInfo.match(text) }

// AnalysisRequested reports whether the text explicitly asks to analyze
// or identify an attached photo.
func (c *Classifier) AnalysisRequested(text string) bool { return c.analysis.match(text) }

// PackingStyle returns the packing style named in text, or "".
func (c *Classifier) PackingStyle(text string) string {
	return c.packStyles.first(strings.ToLower(text))
}

// DefaultPackingStyle is used when neither the text nor the profile name a
// style.
func (c *Classifier) DefaultPackingStyle() string { return c.packStyleDef }

// SocialOptions are the post settings found in a social-media request.
type SocialOptions struct {
	Platform string   `json:"platform"`
	Style    string   `json:"style"`
	Keywords []string `json:"keywords,omitempty"`
}

// SocialOptions extracts platform, style and keywords, applying defaults.
func (c *Classifier) SocialOptions(text string) SocialOptions {
	lower := strings.ToLower(text)
	opts := SocialOptions{
		Platform: c.platforms.first(lower),
		Style:    c.postStyles.first(lower),
	}
	if opts.Platform == "" {
		opts.Platform = c.platformDef
	}
	if opts.Style == "" {
		opts.Style = c.postStyleDef
	}
	if c.postKeywords != nil {
		if m := c.postKeywords.FindStringSubmatch(text); len(m) > 1 {
			opts.Keywords = splitList(m[1], []string{",", "，", "、", " ", "#"})
		}
	}
	return opts
}

// --- matchers ---

type slotMatcher struct {
	patterns []*regexp.Regexp
	ignore   map[string]bool
}

func newSlotMatcher(section string, r SlotRules) (slotMatcher, error) {
	res, err := compilePatterns(section, r.Patterns)
	if err != nil {
		return slotMatcher{}, err
	}
	m := slotMatcher{patterns: res, ignore: make(map[string]bool, len(r.IgnoreSlots))}
	for _, s := range r.IgnoreSlots {
		m.ignore[strings.ToLower(s)] = true
	}
	return m, nil
}

func (m slotMatcher) clean(s string) string {
	s = cleanSlot(s)
	if m.ignore[strings.ToLower(s)] {
		return ""
	}
	return s
}

// first returns the first non-empty group of the first pattern that has
// one. Patterns are tried in declaration order.
func (m slotMatcher) first(text string) (string, bool) {
	for _, re := range m.patterns {
		groups := re.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		for _, g := range groups[1:] {
			if v := m.clean(g); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// pair is first for two-slot patterns; a match missing either slot is
// skipped.
func (m slotMatcher) pair(text string) (string, string, bool) {
	for _, re := range m.patterns {
		groups := re.FindStringSubmatch(text)
		if len(groups) < 3 {
			continue
		}
		a, b := m.clean(groups[1]), m.clean(groups[2])
		if a != "" && b != "" {
			return a, b, true
		}
	}
	return "", "", false
}

type keywordMatcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

func newKeywordMatcher(section string, r KeywordRules) (keywordMatcher, error) {
	res, err := compilePatterns(section, r.Patterns)
	if err != nil {
		return keywordMatcher{}, err
	}
	return keywordMatcher{keywords: lowerAll(r.Keywords), patterns: res}, nil
}

// match lower-cases both sides, which folds Latin script and leaves CJK
// untouched.
func (m keywordMatcher) match(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range m.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

type groupMatcher []Group

func newGroupMatcher(groups []Group) groupMatcher {
	out := make(groupMatcher, 0, len(groups))
	for _, g := range groups {
		out = append(out, Group{Name: g.Name, Keywords: lowerAll(g.Keywords)})
	}
	return out
}

// first returns the name of the first group with a keyword in lower.
func (g groupMatcher) first(lower string) string {
	for _, grp := range g {
		if containsAny(lower, grp.Keywords) {
			return grp.Name
		}
	}
	return ""
}

// all returns the names of every group with a keyword in lower.
func (g groupMatcher) all(lower string) []string {
	var out []string
	for _, grp := range g {
		if containsAny(lower, grp.Keywords) {
			out = append(out, grp.Name)
		}
	}
	return out
}

// --- helpers ---

func compile(section string, i int, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%s pattern %d: %w", section, i, err)
	}
	return re, nil
}

func compilePatterns(section string, exprs []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for i, e := range exprs {
		re, err := compile(section, i, e)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func cleanSlot(s string) string {
	return strings.Trim(s, slotCutset)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// splitList splits s on every separator and drops empty items.
func splitList(s string, seps []string) []string {
	parts := []string{s}
	for _, sep := range seps {
		if sep == "" {
			continue
		}
		var next []string
		for _, p := range parts {
			next = append(next, strings.Split(p, sep)...)
		}
		parts = next
	}
	var out []string
	for _, p := range parts {
		if p = cleanSlot(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
