package intent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRules []byte

// Rules is the data that drives every classifier. It is loaded from YAML so
// phrasings and languages can be added without recompiling.
type Rules struct {
	Weather       SlotRules     `yaml:"weather"`
	ForecastDays  []DayOffset   `yaml:"forecast_days"`
	Fahrenheit    KeywordRules  `yaml:"fahrenheit"`
	Traffic       SlotRules     `yaml:"traffic"`
	Route         SlotRules     `yaml:"route"`
	Facility      FacilityRules `yaml:"facility"`
	Scenic        ScenicRules   `yaml:"scenic"`
	Itinerary     KeywordRules  `yaml:"itinerary"`
	Packing       KeywordRules  `yaml:"packing"`
	SocialMedia   KeywordRules  `yaml:"social_media"`
	UserInfo      KeywordRules  `yaml:"user_info"`
	ImageAnalysis KeywordRules  `yaml:"image_analysis"`

	Extraction    ExtractionRules `yaml:"extraction"`
	Social        SocialRules     `yaml:"social"`
	PackingStyles GroupRules      `yaml:"packing_styles"`
}

// SlotRules is an ordered list of patterns whose first non-empty capture
// group is the slot value. Values listed in IgnoreSlots count as empty.
type SlotRules struct {
	Patterns    []string `yaml:"patterns"`
	IgnoreSlots []string `yaml:"ignore_slots"`
}

type KeywordRules struct {
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
}

type DayOffset struct {
	Name   string `yaml:"name"`
	Offset int    `yaml:"offset"`
}

// Group is a named keyword set; the first group with a hit wins.
type Group struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type GroupRules struct {
	Styles       []Group `yaml:"styles"`
	DefaultStyle string  `yaml:"default_style"`
}

type FacilityCategory struct {
	Name     string   `yaml:"name"`
	Search   string   `yaml:"search"`
	Keywords []string `yaml:"keywords"`
	// Scan is the stricter keyword list used when the utterance has no
	// explicit "where is X" phrasing. Empty means Keywords.
	Scan []string `yaml:"scan"`
}

type FacilityRules struct {
	Patterns         []string           `yaml:"patterns"`
	Categories       []FacilityCategory `yaml:"categories"`
	LocationPatterns []string           `yaml:"location_patterns"`
	DefaultLocation  string             `yaml:"default_location"`
	RadiusPattern    string             `yaml:"radius_pattern"`
	DefaultRadius    int                `yaml:"default_radius"`
}

// SearchKeywords maps each category name to its place-search keyword.
func (f FacilityRules) SearchKeywords() map[string]string {
	out := make(map[string]string, len(f.Categories))
	for _, c := range f.Categories {
		out[c.Name] = c.Search
	}
	return out
}

type ScenicRules struct {
	Patterns     []string `yaml:"patterns"`
	HerePatterns []string `yaml:"here_patterns"`
	HereValue    string   `yaml:"here_value"`
}

type ExtractionRules struct {
	Destination          []string `yaml:"destination"`
	DateRange            string   `yaml:"date_range"`
	Budget               string   `yaml:"budget"`
	BudgetUnit           string   `yaml:"budget_unit"`
	Preferences          []string `yaml:"preferences"`
	PreferenceSeparators []string `yaml:"preference_separators"`
	Styles               []Group  `yaml:"styles"`
	Diets                []Group  `yaml:"diets"`
}

type SocialRules struct {
	Platforms       []Group `yaml:"platforms"`
	DefaultPlatform string  `yaml:"default_platform"`
	Styles          []Group `yaml:"styles"`
	DefaultStyle    string  `yaml:"default_style"`
	KeywordPattern  string  `yaml:"keyword_pattern"`
}

// DefaultRules returns the built-in tables.
func DefaultRules() Rules {
	var r Rules
	if err := yaml.Unmarshal(defaultRules, &r); err != nil {
		panic(fmt.Sprintf("intent: embedded rules: %v", err))
	}
	return r
}

// LoadRules reads a rules file layered over the built-in tables. Keys
// present in the file override the defaults; lists are replaced, not
// appended. An empty path yields the defaults.
func LoadRules(path string) (Rules, error) {
	r := DefaultRules()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return r, nil
}
