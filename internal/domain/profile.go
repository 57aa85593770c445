package domain

import "context"

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Profile is the accumulated travel preferences of one user. Every field
// is optional.
type Profile struct {
	Destination         string     `json:"destination,omitempty"`
	TravelDates         *DateRange `json:"travel_dates,omitempty"`
	DietaryRestrictions []string   `json:"dietary_restrictions,omitempty"`
	Preferences         []string   `json:"preferences,omitempty"`
	Budget              string     `json:"budget,omitempty"`
	TravelStyle         string     `json:"travel_style,omitempty"`
}

// IsEmpty reports whether no field is set.
func (p Profile) IsEmpty() bool {
	return p.Destination == "" && p.TravelDates == nil && len(p.DietaryRestrictions) == 0 &&
		len(p.Preferences) == 0 && p.Budget == "" && p.TravelStyle == ""
}

// HasDates reports whether both ends of the travel date range are known.
func (p Profile) HasDates() bool {
	return p.TravelDates != nil && p.TravelDates.Start != "" && p.TravelDates.End != ""
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	if p.TravelDates != nil {
		d := *p.TravelDates
		out.TravelDates = &d
	}
	out.DietaryRestrictions = append([]string(nil), p.DietaryRestrictions...)
	out.Preferences = append([]string(nil), p.Preferences...)
	return out
}

// ProfileUpdate is a partial profile. Nil fields are left untouched by a
// merge; non-nil list fields replace the stored list wholesale.
type ProfileUpdate struct {
	Destination         *string    `json:"destination,omitempty"`
	TravelDates         *DateRange `json:"travel_dates,omitempty"`
	DietaryRestrictions []string   `json:"dietary_restrictions,omitempty"`
	Preferences         []string   `json:"preferences,omitempty"`
	Budget              *string    `json:"budget,omitempty"`
	TravelStyle         *string    `json:"travel_style,omitempty"`
}

// IsEmpty reports whether the update carries no field.
func (u ProfileUpdate) IsEmpty() bool {
	return u.Destination == nil && u.TravelDates == nil && u.DietaryRestrictions == nil &&
		u.Preferences == nil && u.Budget == nil && u.TravelStyle == nil
}

// Apply merges u into p and returns the result. p is not modified.
func (u ProfileUpdate) Apply(p Profile) Profile {
	out := p.Clone()
	if u.Destination != nil {
		out.Destination = *u.Destination
	}
	if u.TravelDates != nil {
		d := *u.TravelDates
		out.TravelDates = &d
	}
	if u.DietaryRestrictions != nil {
		out.DietaryRestrictions = dedupe(u.DietaryRestrictions)
	}
	if u.Preferences != nil {
		out.Preferences = append([]string{}, u.Preferences...)
	}
	if u.Budget != nil {
		out.Budget = *u.Budget
	}
	if u.TravelStyle != nil {
		out.TravelStyle = *u.TravelStyle
	}
	return out
}

// dedupe keeps the first occurrence of each value; dietary restrictions
// are a set.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ProfileStore holds one Profile per user identifier.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Update(ctx context.Context, userID string, u ProfileUpdate) (Profile, error)
}

// HistoryStore loads and archives conversation entries keyed by a
// configuration identifier and a history identifier.
type HistoryStore interface {
	LoadHistory(ctx context.Context, confUID, historyUID string) ([]Message, error)
	AppendHistory(ctx context.Context, confUID, historyUID string, msgs []Message) error
}
