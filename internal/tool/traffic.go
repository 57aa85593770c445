package tool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"tripbot/internal/tool/amap"
)

var errMapsUnavailable = errors.New("map service not configured")

const (
	defaultTrafficRadius = 1000
	maxTrafficRadius     = 5000
	trafficTopRoads      = 5
	routeStepPreview     = 3
)

var roadStatusText = [...]string{"未知", "畅通", "缓行", "拥堵"}

type RoadReport struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Direction string `json:"direction,omitempty"`
	Speed     string `json:"speed,omitempty"`
}

type TrafficReport struct {
	Location        string       `json:"location"`
	Radius          int          `json:"radius"`
	Overall         string       `json:"overall"`
	CongestionRatio float64      `json:"congestion_ratio"`
	Description     string       `json:"description,omitempty"`
	Roads           []RoadReport `json:"roads"`
}

// TrafficStatusTool summarizes road conditions around a location.
type TrafficStatusTool struct {
	maps MapService
}

func NewTrafficStatusTool(maps MapService) *TrafficStatusTool {
	return &TrafficStatusTool{maps: maps}
}

func (t *TrafficStatusTool) Name() string { return "get_traffic_status" }
func (t *TrafficStatusTool) Description() string {
	return "Get real-time traffic conditions around a location: overall status, congestion ratio and the busiest roads."
}
func (t *TrafficStatusTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"location": {Type: "string", Description: "Place name or lon,lat"},
			"radius":   {Type: "integer", Description: "Search radius in meters (default 1000, max 5000)"},
		},
		[]string{"location"},
	)
}

func (t *TrafficStatusTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	location, err := requireString(args, "location")
	if err != nil {
		return nil, err
	}
	radius := ArgsInt(args, "radius", defaultTrafficRadius)
	if radius <= 0 {
		radius = defaultTrafficRadius
	}
	radius = min(radius, maxTrafficRadius)
	if t.maps == nil {
		return nil, errMapsUnavailable
	}

	loc, err := t.maps.Resolve(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	info, err := t.maps.TrafficInRectangle(ctx, amap.Rectangle(loc.Lon, loc.Lat, radius))
	if err != nil {
		return nil, fmt.Errorf("traffic near %s: %w", location, err)
	}
	return summarizeTraffic(location, radius, info), nil
}

func summarizeTraffic(location string, radius int, info amap.TrafficInfo) TrafficReport {
	report := TrafficReport{
		Location:    location,
		Radius:      radius,
		Overall:     roadStatusText[0],
		Description: info.Description,
		Roads:       []RoadReport{},
	}
	roads := append([]amap.Road(nil), info.Roads...)
	known, congested := 0, 0
	for _, r := range roads {
		switch r.RoadStatus() {
		case 0:
		case 2, 3:
			known++
			congested++
		default:
			known++
		}
	}
	if known > 0 {
		ratio := float64(congested) / float64(known)
		report.CongestionRatio = math.Round(ratio*100) / 100
		switch {
		case ratio < 0.2:
			report.Overall = roadStatusText[1]
		case ratio < 0.5:
			report.Overall = roadStatusText[2]
		default:
			report.Overall = roadStatusText[3]
		}
	}

	sort.SliceStable(roads, func(i, j int) bool { return roads[i].RoadStatus() > roads[j].RoadStatus() })
	for _, r := range roads[:min(len(roads), trafficTopRoads)] {
		report.Roads = append(report.Roads, RoadReport{
			Name:      r.Name,
			Status:    roadStatusText[r.RoadStatus()],
			Direction: r.Direction.String(),
			Speed:     r.Speed.String(),
		})
	}
	return report
}

type RouteStep struct {
	Instruction string `json:"instruction"`
	Road        string `json:"road,omitempty"`
	Distance    int    `json:"distance_m"`
}

type RouteReport struct {
	Origin          string      `json:"origin"`
	Destination     string      `json:"destination"`
	DistanceKm      float64     `json:"distance_km"`
	DurationMinutes int         `json:"duration_minutes"`
	Tolls           float64     `json:"tolls,omitempty"`
	Steps           []RouteStep `json:"steps"`
}

// RouteTrafficTool plans a driving route between two places.
type RouteTrafficTool struct {
	maps MapService
}

func NewRouteTrafficTool(maps MapService) *RouteTrafficTool {
	return &RouteTrafficTool{maps: maps}
}

func (t *RouteTrafficTool) Name() string { return "get_route_traffic" }
func (t *RouteTrafficTool) Description() string {
	return "Plan a driving route between an origin and a destination, with distance, estimated duration and the first steps."
}
func (t *RouteTrafficTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"origin":      {Type: "string", Description: "Start place name or lon,lat"},
			"destination": {Type: "string", Description: "End place name or lon,lat"},
		},
		[]string{"origin", "destination"},
	)
}

func (t *RouteTrafficTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	origin, err := requireString(args, "origin")
	if err != nil {
		return nil, err
	}
	destination, err := requireString(args, "destination")
	if err != nil {
		return nil, err
	}
	if t.maps == nil {
		return nil, errMapsUnavailable
	}

	from, err := t.maps.Resolve(ctx, origin)
	if err != nil {
		return nil, fmt.Errorf("resolve origin %s: %w", origin, err)
	}
	to, err := t.maps.Resolve(ctx, destination)
	if err != nil {
		return nil, fmt.Errorf("resolve destination %s: %w", destination, err)
	}
	path, err := t.maps.Driving(ctx, from.LonLat(), to.LonLat())
	if err != nil {
		return nil, fmt.Errorf("route %s -> %s: %w", origin, destination, err)
	}

	report := RouteReport{
		Origin:          origin,
		Destination:     destination,
		DistanceKm:      math.Round(parseNumber(path.Distance.String())/100) / 10,
		DurationMinutes: int(math.Ceil(parseNumber(path.Duration.String()) / 60)),
		Tolls:           parseNumber(path.Tolls.String()),
		Steps:           []RouteStep{},
	}
	for _, s := range path.Steps[:min(len(path.Steps), routeStepPreview)] {
		report.Steps = append(report.Steps, RouteStep{
			Instruction: s.Instruction.String(),
			Road:        s.Road.String(),
			Distance:    int(parseNumber(s.Distance.String())),
		})
	}
	return report, nil
}
