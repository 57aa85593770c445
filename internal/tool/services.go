package tool

import (
	"context"
	"log/slog"
	"time"

	"tripbot/internal/domain"
	"tripbot/internal/tool/amap"
	"tripbot/internal/tool/baidu"
)

// MapService is the slice of the AMap client the travel tools use.
type MapService interface {
	Resolve(ctx context.Context, query string) (amap.Location, error)
	LocateIP(ctx context.Context, ip string) (amap.IPLocation, error)
	LiveWeather(ctx context.Context, city string) (amap.LiveWeather, error)
	Forecast(ctx context.Context, city string) (amap.Forecast, error)
	TrafficInRectangle(ctx context.Context, rect string) (amap.TrafficInfo, error)
	Driving(ctx context.Context, origin, destination string) (amap.DrivingPath, error)
	Around(ctx context.Context, lonlat, keywords string, radius, limit int) ([]amap.POI, error)
	Search(ctx context.Context, keywords, city string, limit int) ([]amap.POI, error)
}

// LandmarkRecognizer identifies landmarks in photos.
type LandmarkRecognizer interface {
	RecognizeLandmark(ctx context.Context, image string) (baidu.Landmark, error)
}

var (
	_ MapService         = (*amap.Client)(nil)
	_ LandmarkRecognizer = (*baidu.Client)(nil)
)

// Deps are the collaborators the travel tools are built from. Credentials
// live inside the clients; nothing here is global.
type Deps struct {
	Maps     MapService
	Vision   LandmarkRecognizer
	Profiles domain.ProfileStore

	// FacilitySearch maps facility categories to place-search keywords.
	FacilitySearch map[string]string
	Logger         *slog.Logger
	Now            func() time.Time
}

// RegisterTravelTools adds the full travel catalogue to r.
func RegisterTravelTools(r *Registry, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	for _, t := range []domain.Tool{
		NewCurrentWeatherTool(d.Maps),
		NewDateWeatherTool(d.Maps, d.Now),
		NewTrafficStatusTool(d.Maps),
		NewRouteTrafficTool(d.Maps),
		NewFacilityTool(d.Maps, d.FacilitySearch),
		NewScenicSpotTool(d.Maps),
		NewItineraryTool(d.Maps, d.Logger),
		NewPackingListTool(),
		NewPhotoAnalysisTool(d.Vision),
		NewSocialPostTool(),
		NewCollectUserInfoTool(d.Profiles),
		NewGetUserInfoTool(d.Profiles),
		NewIPLocationTool(d.Maps),
	} {
		r.Register(t)
	}
}
