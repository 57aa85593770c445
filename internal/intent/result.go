package intent

// Slot is a single-value classifier outcome.
type Slot struct {
	Matched bool   `json:"matched"`
	Value   string `json:"value,omitempty"`
}

// RouteSlots is the route classifier outcome.
type RouteSlots struct {
	Matched     bool   `json:"matched"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
}

// Result holds the outcome of every classifier for one utterance.
type Result struct {
	HasImage      bool       `json:"has_image"`
	ImageAnalysis bool       `json:"image_analysis"`
	Weather       Slot       `json:"weather"`
	Traffic       Slot       `json:"traffic"`
	Route         RouteSlots `json:"route"`
	Facility      Facility   `json:"facility"`
	Itinerary     bool       `json:"itinerary"`
	Packing       bool       `json:"packing"`
	UserInfo      bool       `json:"user_info"`
	Scenic        Slot       `json:"scenic"`
	SocialMedia   bool       `json:"social_media"`
}

// Classify runs every classifier against text. None is skipped, whatever
// matched before it.
func (c *Classifier) Classify(text string, hasImage bool) Result {
	r := Result{
		HasImage:      hasImage,
		ImageAnalysis: c.AnalysisRequested(text),
		Itinerary:     c.Itinerary(text),
		Packing:       c.Packing(text),
		UserInfo:      c.UserInfo(text),
		SocialMedia:   c.SocialMedia(text),
	}
	r.Weather.Value, r.Weather.Matched = c.Weather(text)
	r.Traffic.Value, r.Traffic.Matched = c.Traffic(text)
	r.Route.Origin, r.Route.Destination, r.Route.Matched = c.Route(text)
	r.Facility, _ = c.Facility(text)
	r.Scenic.Value, r.Scenic.Matched = c.Scenic(text)
	return r
}

// Matches reports whether the branch of kind k is satisfied.
func (r Result) Matches(k Kind) bool {
	switch k {
	case KindImageAnalysis:
		return r.HasImage && r.ImageAnalysis
	case KindWeather:
		return r.Weather.Matched
	case KindTraffic:
		return r.Traffic.Matched
	case KindRoute:
		return r.Route.Matched
	case KindFacility:
		return r.Facility.Matched
	case KindItinerary:
		return r.Itinerary
	case KindPacking:
		return r.Packing
	case KindUserInfo:
		return r.UserInfo
	case KindScenic:
		return r.Scenic.Matched
	case KindSocialMedia:
		return r.SocialMedia && !r.HasImage
	case KindChat:
		return true
	}
	return false
}

// Top returns the highest-priority satisfied branch.
func (r Result) Top() Kind {
	for _, k := range Priority {
		if r.Matches(k) {
			return k
		}
	}
	return KindChat
}
