package intent

// Kind identifies a dispatch branch.
type Kind int

const (
	KindChat Kind = iota
	KindImageAnalysis
	KindWeather
	KindTraffic
	KindRoute
	KindFacility
	KindItinerary
	KindPacking
	KindUserInfo
	KindScenic
	KindSocialMedia
)

var kindNames = map[Kind]string{
	KindChat:          "chat",
	KindImageAnalysis: "image_analysis",
	KindWeather:       "weather",
	KindTraffic:       "traffic",
	KindRoute:         "route",
	KindFacility:      "facility",
	KindItinerary:     "itinerary",
	KindPacking:       "packing",
	KindUserInfo:      "user_info",
	KindScenic:        "scenic",
	KindSocialMedia:   "social_media",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Priority is the order in which branches are considered, highest first.
// KindChat always matches and closes the list.
var Priority = []Kind{
	KindImageAnalysis,
	KindWeather,
	KindTraffic,
	KindRoute,
	KindFacility,
	KindItinerary,
	KindPacking,
	KindUserInfo,
	KindScenic,
	KindSocialMedia,
	KindChat,
}
