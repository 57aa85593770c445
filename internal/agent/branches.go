package agent

import (
	"strings"
	"time"

	"tripbot/internal/domain"
	"tripbot/internal/tool"
)

func (d *Dispatcher) chatBranch(*turnState) (string, error) { return "", nil }

// imageBranch analyzes the attached photo and, when the text also asks
// for a post, turns the analysis into one.
func (d *Dispatcher) imageBranch(ts *turnState) (string, error) {
	analysis := d.invoke(ts, "analyze_travel_photo", map[string]any{"image_data": ts.turn.Images[0]})
	if !ts.intents.SocialMedia {
		return "", nil
	}
	p, err := d.profile(ts)
	if err != nil {
		return "", err
	}
	args := d.socialArgs(ts, p)
	if analysis.OK() {
		args["photos_analysis"] = []any{analysis.Value}
	}
	d.invoke(ts, "generate_social_media_post", args)
	return "", nil
}

func (d *Dispatcher) weatherBranch(ts *turnState) (string, error) {
	args := map[string]any{"location": ts.intents.Weather.Value}
	if d.classifier.WantsFahrenheit(ts.turn.Text) {
		args["unit"] = tool.UnitFahrenheit
	}
	name := "get_current_temperature"
	if offset, ok := d.classifier.ForecastOffset(ts.turn.Text); ok && offset > 0 {
		name = "get_temperature_date"
		args["date"] = d.now().AddDate(0, 0, offset).Format(time.DateOnly)
	}
	d.invoke(ts, name, args)
	return "", nil
}

func (d *Dispatcher) trafficBranch(ts *turnState) (string, error) {
	d.invoke(ts, "get_traffic_status", map[string]any{"location": ts.intents.Traffic.Value})
	return "", nil
}

func (d *Dispatcher) routeBranch(ts *turnState) (string, error) {
	d.invoke(ts, "get_route_traffic", map[string]any{
		"origin":      ts.intents.Route.Origin,
		"destination": ts.intents.Route.Destination,
	})
	return "", nil
}

func (d *Dispatcher) facilityBranch(ts *turnState) (string, error) {
	f := ts.intents.Facility
	args := map[string]any{"facility_type": f.Category}
	if f.Location != "" {
		args["location"] = f.Location
	}
	if f.Radius > 0 {
		args["radius"] = f.Radius
	}
	d.invoke(ts, "find_nearby_facilities", args)
	return "", nil
}

func (d *Dispatcher) itineraryBranch(ts *turnState) (string, error) {
	p, err := d.profile(ts)
	if err != nil {
		return "", err
	}
	if p.Destination == "" || !p.HasDates() {
		return clarifyItinerary, nil
	}
	args := map[string]any{
		"destination": p.Destination,
		"start_date":  p.TravelDates.Start,
		"end_date":    p.TravelDates.End,
	}
	if prefs := preferenceArgs(p); len(prefs) > 0 {
		args["user_preferences"] = prefs
	}
	d.invoke(ts, "generate_travel_itinerary", args)
	return "", nil
}

// packingBranch looks up the destination weather first; the packing list
// is built from that result.
func (d *Dispatcher) packingBranch(ts *turnState) (string, error) {
	p, err := d.profile(ts)
	if err != nil {
		return "", err
	}
	if p.Destination == "" || !p.HasDates() {
		return clarifyPacking, nil
	}

	weather := d.invoke(ts, "get_current_temperature", map[string]any{"location": p.Destination})

	style := d.classifier.PackingStyle(ts.turn.Text)
	if style == "" {
		style = p.TravelStyle
	}
	if style == "" {
		style = d.classifier.DefaultPackingStyle()
	}
	args := map[string]any{
		"destination":  p.Destination,
		"travel_dates": []string{p.TravelDates.Start, p.TravelDates.End},
		"user_style":   style,
	}
	if weather.OK() {
		args["weather_info"] = weather.Value
	}
	d.invoke(ts, "generate_packing_list", args)
	return "", nil
}

// userInfoBranch stores what the utterance reveals about the user, or
// reads the profile back when nothing could be extracted.
func (d *Dispatcher) userInfoBranch(ts *turnState) (string, error) {
	update := d.classifier.ExtractProfile(ts.turn.Text)
	if update.IsEmpty() {
		d.invoke(ts, "get_user_info", map[string]any{"user_id": ts.turn.UserID})
		return "", nil
	}
	d.invoke(ts, "collect_user_info", map[string]any{"user_id": ts.turn.UserID, "info": update})
	return "", nil
}

func (d *Dispatcher) scenicBranch(ts *turnState) (string, error) {
	level := tool.DetailBasic
	lower := strings.ToLower(ts.turn.Text)
	if strings.Contains(lower, "详细") || strings.Contains(lower, "detail") {
		level = tool.DetailDetailed
	}
	d.invoke(ts, "get_scenic_spot_info", map[string]any{
		"location":     ts.intents.Scenic.Value,
		"detail_level": level,
	})
	return "", nil
}

// socialBranch writes a post from the profile alone; without a known
// destination there is nothing to write about.
func (d *Dispatcher) socialBranch(ts *turnState) (string, error) {
	p, err := d.profile(ts)
	if err != nil {
		return "", err
	}
	if p.Destination == "" {
		return clarifySocial, nil
	}
	d.invoke(ts, "generate_social_media_post", d.socialArgs(ts, p))
	return "", nil
}

func (d *Dispatcher) socialArgs(ts *turnState, p domain.Profile) map[string]any {
	opts := d.classifier.SocialOptions(ts.turn.Text)
	args := map[string]any{
		"trip_info": tripInfo(p),
		"platform":  opts.Platform,
		"style":     opts.Style,
	}
	if len(opts.Keywords) > 0 {
		args["keywords"] = opts.Keywords
	}
	return args
}

// tripInfo is the profile as the social post tool expects it.
func tripInfo(p domain.Profile) map[string]any {
	info := map[string]any{}
	if p.Destination != "" {
		info["destination"] = p.Destination
	}
	if p.HasDates() {
		info["travel_dates"] = []string{p.TravelDates.Start, p.TravelDates.End}
	}
	if len(p.Preferences) > 0 {
		info["preferences"] = p.Preferences
	}
	if p.TravelStyle != "" {
		info["travel_style"] = p.TravelStyle
	}
	return info
}

func preferenceArgs(p domain.Profile) map[string]any {
	prefs := map[string]any{}
	if len(p.Preferences) > 0 {
		prefs["preferences"] = p.Preferences
	}
	if len(p.DietaryRestrictions) > 0 {
		prefs["dietary_restrictions"] = p.DietaryRestrictions
	}
	if p.Budget != "" {
		prefs["budget"] = p.Budget
	}
	if p.TravelStyle != "" {
		prefs["travel_style"] = p.TravelStyle
	}
	return prefs
}
