package tool

import (
	"context"
	"fmt"
	"strings"

	"tripbot/internal/tool/amap"
)

const (
	defaultFacilityRadius = 1000
	maxFacilityRadius     = 50000
	facilityLimit         = 10
)

type FacilityReport struct {
	FacilityType string     `json:"facility_type"`
	Location     string     `json:"location"`
	Radius       int        `json:"radius"`
	Count        int        `json:"count"`
	Facilities   []amap.POI `json:"facilities"`
}

// FacilityTool finds facilities of a category near a location.
type FacilityTool struct {
	maps   MapService
	search map[string]string
}

// NewFacilityTool builds the tool. search maps category names to the
// keyword sent to place search; unknown categories are searched verbatim.
func NewFacilityTool(maps MapService, search map[string]string) *FacilityTool {
	return &FacilityTool{maps: maps, search: search}
}

func (t *FacilityTool) Name() string { return "find_nearby_facilities" }
func (t *FacilityTool) Description() string {
	return "Find nearby facilities such as restrooms (洗手间), rest areas (休息点), malls (商场), restaurants (餐厅) or hospitals (医院), nearest first."
}
func (t *FacilityTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"facility_type": {Type: "string", Description: "Facility category, e.g. 洗手间, 休息点, 商场, 餐厅, 医院"},
			"location":      {Type: "string", Description: "Place name, lon,lat, or 当前位置 (default)"},
			"radius":        {Type: "integer", Description: "Search radius in meters (default 1000)"},
		},
		[]string{"facility_type"},
	)
}

func (t *FacilityTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	category, err := requireString(args, "facility_type")
	if err != nil {
		return nil, err
	}
	location := ArgsString(args, "location")
	if location == "" {
		location = amap.CurrentLocation
	}
	radius := ArgsInt(args, "radius", defaultFacilityRadius)
	if radius <= 0 {
		radius = defaultFacilityRadius
	}
	radius = min(radius, maxFacilityRadius)
	if t.maps == nil {
		return nil, errMapsUnavailable
	}

	loc, err := t.maps.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	keyword := category
	if kw, ok := t.search[category]; ok && kw != "" {
		keyword = kw
	}
	pois, err := t.maps.Around(ctx, loc.LonLat(), keyword, radius, facilityLimit)
	if err != nil {
		return nil, fmt.Errorf("search %s near %s: %w", category, location, err)
	}
	if pois == nil {
		pois = []amap.POI{}
	}
	return FacilityReport{
		FacilityType: category,
		Location:     location,
		Radius:       radius,
		Count:        len(pois),
		Facilities:   pois,
	}, nil
}

const (
	DetailBasic    = "basic"
	DetailDetailed = "detailed"
)

type ScenicReport struct {
	Name     string     `json:"name"`
	Address  string     `json:"address,omitempty"`
	Type     string     `json:"type,omitempty"`
	Rating   string     `json:"rating,omitempty"`
	Location string     `json:"location,omitempty"`
	Tel      string     `json:"tel,omitempty"`
	Tips     []string   `json:"tips"`
	Related  []amap.POI `json:"related,omitempty"`
}

// scenicTips are visiting tips keyed by a substring of the POI type.
var scenicTips = []struct {
	typ  string
	tips []string
}{
	{"博物馆", []string{"部分展馆周一闭馆", "热门展览需提前预约"}},
	{"公园", []string{"清晨和傍晚人少景美", "注意携带饮用水"}},
	{"寺庙", []string{"请着装得体", "部分殿内禁止拍照"}},
	{"风景名胜", []string{"建议提前在线购票", "节假日避开上午高峰"}},
}

var defaultScenicTips = []string{"出发前查询开放时间", "穿舒适的鞋子"}

// ScenicSpotTool looks up an attraction.
type ScenicSpotTool struct {
	maps MapService
}

func NewScenicSpotTool(maps MapService) *ScenicSpotTool {
	return &ScenicSpotTool{maps: maps}
}

func (t *ScenicSpotTool) Name() string { return "get_scenic_spot_info" }
func (t *ScenicSpotTool) Description() string {
	return "Get information about a scenic spot or attraction: address, type, rating and visiting tips."
}
func (t *ScenicSpotTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"location":     {Type: "string", Description: "Attraction name, e.g. 故宫"},
			"detail_level": {Type: "string", Description: "Amount of detail", Enum: []string{DetailBasic, DetailDetailed}},
		},
		[]string{"location"},
	)
}

func (t *ScenicSpotTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	name, err := requireString(args, "location")
	if err != nil {
		return nil, err
	}
	if t.maps == nil {
		return nil, errMapsUnavailable
	}
	detailed := ArgsString(args, "detail_level") == DetailDetailed
	limit := 1
	if detailed {
		limit = 4
	}

	if name == amap.CurrentLocation {
		ip, err := t.maps.LocateIP(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("locate current position: %w", err)
		}
		name = ip.City + " 景点"
	}
	pois, err := t.maps.Search(ctx, name, "", limit)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	if len(pois) == 0 {
		return nil, fmt.Errorf("no scenic spot found for %s", name)
	}

	top := pois[0]
	report := ScenicReport{
		Name:     top.Name,
		Address:  top.Address,
		Type:     top.Type,
		Rating:   top.Rating,
		Location: top.Location,
		Tips:     tipsFor(top.Type),
	}
	if detailed {
		report.Tel = top.Tel
		report.Related = pois[1:]
	}
	return report, nil
}

func tipsFor(poiType string) []string {
	for _, e := range scenicTips {
		if strings.Contains(poiType, e.typ) {
			return append([]string(nil), e.tips...)
		}
	}
	return append([]string(nil), defaultScenicTips...)
}

// IPLocationTool reports the city of an IP address.
type IPLocationTool struct {
	maps MapService
}

func NewIPLocationTool(maps MapService) *IPLocationTool {
	return &IPLocationTool{maps: maps}
}

func (t *IPLocationTool) Name() string { return "get_ip_location" }
func (t *IPLocationTool) Description() string {
	return "Locate the city of an IP address, or of this service's own address when ip is omitted."
}
func (t *IPLocationTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"ip": {Type: "string", Description: "IPv4 address (optional)"},
		},
		nil,
	)
}

func (t *IPLocationTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.maps == nil {
		return nil, errMapsUnavailable
	}
	loc, err := t.maps.LocateIP(ctx, ArgsString(args, "ip"))
	if err != nil {
		return nil, err
	}
	return loc, nil
}
