package amap

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// Road is one road segment in a traffic report. Status is 0 unknown,
// 1 clear, 2 slow, 3 congested.
type Road struct {
	Name      string     `json:"name"`
	Status    flexString `json:"status"`
	Direction flexString `json:"direction"`
	Speed     flexString `json:"speed"`
}

type TrafficInfo struct {
	Description string `json:"description"`
	Roads       []Road `json:"roads"`
}

// Rectangle returns the "lon1,lat1;lon2,lat2" box of radius meters around
// a point.
func Rectangle(lon, lat float64, radius int) string {
	km := float64(radius) / 1000
	latDiff := km / 111
	lonDiff := km / (111 * math.Cos(lat*math.Pi/180))
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	return f(lon-lonDiff) + "," + f(lat-latDiff) + ";" + f(lon+lonDiff) + "," + f(lat+latDiff)
}

// TrafficInRectangle reports road conditions inside rect.
func (c *Client) TrafficInRectangle(ctx context.Context, rect string) (TrafficInfo, error) {
	var resp struct {
		TrafficInfo struct {
			Description flexString `json:"description"`
			Roads       []Road     `json:"roads"`
		} `json:"trafficinfo"`
	}
	params := map[string]string{"rectangle": rect, "extensions": "all"}
	if err := c.get(ctx, "/v3/traffic/status/rectangle", params, &resp); err != nil {
		return TrafficInfo{}, err
	}
	return TrafficInfo{
		Description: resp.TrafficInfo.Description.String(),
		Roads:       resp.TrafficInfo.Roads,
	}, nil
}

// RoadStatus returns the numeric status of r, 0 when unknown.
func (r Road) RoadStatus() int {
	n, err := strconv.Atoi(r.Status.String())
	if err != nil || n < 0 || n > 3 {
		return 0
	}
	return n
}

// DrivingStep is one maneuver of a driving route.
type DrivingStep struct {
	Instruction flexString `json:"instruction"`
	Road        flexString `json:"road"`
	Distance    flexString `json:"distance"`
	Duration    flexString `json:"duration"`
}

type DrivingPath struct {
	Distance flexString    `json:"distance"`
	Duration flexString    `json:"duration"`
	Tolls    flexString    `json:"tolls"`
	Steps    []DrivingStep `json:"steps"`
}

// Driving plans a driving route between two "lon,lat" points.
func (c *Client) Driving(ctx context.Context, origin, destination string) (DrivingPath, error) {
	var resp struct {
		Route struct {
			Paths []DrivingPath `json:"paths"`
		} `json:"route"`
	}
	params := map[string]string{"origin": origin, "destination": destination, "extensions": "base"}
	if err := c.get(ctx, "/v3/direction/driving", params, &resp); err != nil {
		return DrivingPath{}, err
	}
	if len(resp.Route.Paths) == 0 {
		return DrivingPath{}, fmt.Errorf("%w: no driving route from %s to %s", ErrNoResult, origin, destination)
	}
	return resp.Route.Paths[0], nil
}
