package amap

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CurrentLocation is the location placeholder resolved by IP.
const CurrentLocation = "当前位置"

// Location is a resolved place.
type Location struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	City    string  `json:"city,omitempty"`
	Adcode  string  `json:"adcode,omitempty"`
	Lon     float64 `json:"lon"`
	Lat     float64 `json:"lat"`
}

// LonLat renders the location the way AMap expects coordinates.
func (l Location) LonLat() string {
	return strconv.FormatFloat(l.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(l.Lat, 'f', 6, 64)
}

// ParseLonLat parses "lon,lat".
func ParseLonLat(s string) (lon, lat float64, err error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("not a lon,lat pair: %q", s)
	}
	if lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("bad longitude in %q: %w", s, err)
	}
	if lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("bad latitude in %q: %w", s, err)
	}
	return lon, lat, nil
}

type geocodeResponse struct {
	Geocodes []struct {
		FormattedAddress flexString `json:"formatted_address"`
		City             flexString `json:"city"`
		Adcode           flexString `json:"adcode"`
		Location         flexString `json:"location"`
	} `json:"geocodes"`
}

// Geocode resolves an address or place name.
func (c *Client) Geocode(ctx context.Context, address string) (Location, error) {
	var resp geocodeResponse
	if err := c.get(ctx, "/v3/geocode/geo", map[string]string{"address": address}, &resp); err != nil {
		return Location{}, err
	}
	if len(resp.Geocodes) == 0 {
		return Location{}, fmt.Errorf("%w for address %q", ErrNoResult, address)
	}
	g := resp.Geocodes[0]
	lon, lat, err := ParseLonLat(g.Location.String())
	if err != nil {
		return Location{}, fmt.Errorf("geocode %q: %w", address, err)
	}
	return Location{
		Name:    address,
		Address: g.FormattedAddress.String(),
		City:    g.City.String(),
		Adcode:  g.Adcode.String(),
		Lon:     lon,
		Lat:     lat,
	}, nil
}

type ipResponse struct {
	Province  flexString `json:"province"`
	City      flexString `json:"city"`
	Adcode    flexString `json:"adcode"`
	Rectangle flexString `json:"rectangle"`
}

// IPLocation is the coarse position of an IP address.
type IPLocation struct {
	IP        string `json:"ip,omitempty"`
	Province  string `json:"province"`
	City      string `json:"city"`
	Adcode    string `json:"adcode"`
	Rectangle string `json:"rectangle"`
}

// LocateIP looks up ip, or the caller's own address when ip is empty.
func (c *Client) LocateIP(ctx context.Context, ip string) (IPLocation, error) {
	params := map[string]string{}
	if ip != "" {
		params["ip"] = ip
	}
	var resp ipResponse
	if err := c.get(ctx, "/v3/ip", params, &resp); err != nil {
		return IPLocation{}, err
	}
	if resp.Adcode == "" {
		return IPLocation{}, fmt.Errorf("%w for ip %q (non-domestic or private address)", ErrNoResult, ip)
	}
	return IPLocation{
		IP:        ip,
		Province:  resp.Province.String(),
		City:      resp.City.String(),
		Adcode:    resp.Adcode.String(),
		Rectangle: resp.Rectangle.String(),
	}, nil
}

// Center returns the middle of the IP's bounding rectangle.
func (l IPLocation) Center() (lon, lat float64, err error) {
	corners := strings.Split(l.Rectangle, ";")
	if len(corners) != 2 {
		return 0, 0, fmt.Errorf("bad rectangle %q", l.Rectangle)
	}
	lon1, lat1, err := ParseLonLat(corners[0])
	if err != nil {
		return 0, 0, err
	}
	lon2, lat2, err := ParseLonLat(corners[1])
	if err != nil {
		return 0, 0, err
	}
	return (lon1 + lon2) / 2, (lat1 + lat2) / 2, nil
}

// Resolve turns a user-supplied location into coordinates: "lon,lat" is
// used as is, the current-location placeholder (or "") is located by IP,
// anything else is geocoded.
func (c *Client) Resolve(ctx context.Context, query string) (Location, error) {
	query = strings.TrimSpace(query)
	if lon, lat, err := ParseLonLat(query); err == nil {
		return Location{Name: query, Lon: lon, Lat: lat}, nil
	}
	if query == "" || query == CurrentLocation {
		ipLoc, err := c.LocateIP(ctx, "")
		if err != nil {
			return Location{}, fmt.Errorf("locate current position: %w", err)
		}
		lon, lat, err := ipLoc.Center()
		if err != nil {
			return Location{}, fmt.Errorf("locate current position: %w", err)
		}
		return Location{Name: ipLoc.City, City: ipLoc.City, Adcode: ipLoc.Adcode, Lon: lon, Lat: lat}, nil
	}
	return c.Geocode(ctx, query)
}
