package amap

import (
	"context"
	"strconv"
)

// POI is a point of interest from place search.
type POI struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Address  string `json:"address,omitempty"`
	Location string `json:"location,omitempty"`
	Distance string `json:"distance,omitempty"`
	Tel      string `json:"tel,omitempty"`
	Rating   string `json:"rating,omitempty"`
	Cost     string `json:"cost,omitempty"`
}

type rawPOI struct {
	Name     flexString `json:"name"`
	Type     flexString `json:"type"`
	Address  flexString `json:"address"`
	Location flexString `json:"location"`
	Distance flexString `json:"distance"`
	Tel      flexString `json:"tel"`
	BizExt   struct {
		Rating flexString `json:"rating"`
		Cost   flexString `json:"cost"`
	} `json:"biz_ext"`
}

func (r rawPOI) poi() POI {
	return POI{
		Name:     r.Name.String(),
		Type:     r.Type.String(),
		Address:  r.Address.String(),
		Location: r.Location.String(),
		Distance: r.Distance.String(),
		Tel:      r.Tel.String(),
		Rating:   r.BizExt.Rating.String(),
		Cost:     r.BizExt.Cost.String(),
	}
}

type placeResponse struct {
	POIs []rawPOI `json:"pois"`
}

func (p placeResponse) list() []POI {
	out := make([]POI, 0, len(p.POIs))
	for _, r := range p.POIs {
		out = append(out, r.poi())
	}
	return out
}

// Around searches keywords within radius meters of a "lon,lat" point,
// nearest first.
func (c *Client) Around(ctx context.Context, lonlat, keywords string, radius, limit int) ([]POI, error) {
	var resp placeResponse
	params := map[string]string{
		"location":   lonlat,
		"keywords":   keywords,
		"radius":     strconv.Itoa(radius),
		"sortrule":   "distance",
		"offset":     strconv.Itoa(limit),
		"page":       "1",
		"extensions": "all",
	}
	if err := c.get(ctx, "/v3/place/around", params, &resp); err != nil {
		return nil, err
	}
	return resp.list(), nil
}

// Search looks keywords up by text, optionally restricted to a city.
func (c *Client) Search(ctx context.Context, keywords, city string, limit int) ([]POI, error) {
	var resp placeResponse
	params := map[string]string{
		"keywords":   keywords,
		"offset":     strconv.Itoa(limit),
		"page":       "1",
		"extensions": "all",
	}
	if city != "" {
		params["city"] = city
	}
	if err := c.get(ctx, "/v3/place/text", params, &resp); err != nil {
		return nil, err
	}
	return resp.list(), nil
}
