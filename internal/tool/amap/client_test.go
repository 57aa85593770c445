package amap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeAMap serves canned bodies keyed by path.
func fakeAMap(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *Client {
	return New(Config{
		APIKey:     "test-key",
		BaseURL:    url,
		MaxRetries: 2,
		RetryWait:  time.Millisecond,
		Logger:     testLogger(),
	})
}

func TestGeocode(t *testing.T) {
	srv := fakeAMap(t, map[string]string{
		"/v3/geocode/geo": `{"status":"1","info":"OK","geocodes":[{"formatted_address":"北京市","city":[],"adcode":"110000","location":"116.407387,39.904179"}]}`,
	})
	c := newTestClient(srv.URL)

	loc, err := c.Geocode(context.Background(), "北京")
	require.NoError(t, err)
	assert.Equal(t, "北京", loc.Name)
	assert.Equal(t, "北京市", loc.Address)
	assert.Equal(t, "", loc.City)
	assert.Equal(t, "110000", loc.Adcode)
	assert.InDelta(t, 116.407387, loc.Lon, 1e-6)
	assert.InDelta(t, 39.904179, loc.Lat, 1e-6)
	assert.Equal(t, "116.407387,39.904179", loc.LonLat())
}

func TestGeocodeNoResult(t *testing.T) {
	srv := fakeAMap(t, map[string]string{
		"/v3/geocode/geo": `{"status":"1","info":"OK","geocodes":[]}`,
	})
	_, err := newTestClient(srv.URL).Geocode(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestAPIErrorIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, `{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Geocode(context.Background(), "北京")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_USER_KEY")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestServerErrorIsRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{"status":"1","province":"北京市","city":"北京市","adcode":"110000","rectangle":"116.0,39.6;116.8,40.2"}`)
	}))
	defer srv.Close()

	ip, err := newTestClient(srv.URL).LocateIP(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	lon, lat, err := ip.Center()
	require.NoError(t, err)
	assert.InDelta(t, 116.4, lon, 1e-9)
	assert.InDelta(t, 39.9, lat, 1e-9)
}

func TestNoAPIKey(t *testing.T) {
	c := New(Config{Logger: testLogger()})
	_, err := c.LiveWeather(context.Background(), "110000")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestResolve(t *testing.T) {
	srv := fakeAMap(t, map[string]string{
		"/v3/ip":          `{"status":"1","province":"上海市","city":"上海市","adcode":"310000","rectangle":"121.0,31.0;122.0,32.0"}`,
		"/v3/geocode/geo": `{"status":"1","geocodes":[{"formatted_address":"北京市东城区故宫","city":"北京市","adcode":"110101","location":"116.397,39.918"}]}`,
	})
	c := newTestClient(srv.URL)
	ctx := context.Background()

	loc, err := c.Resolve(ctx, "116.1, 39.2")
	require.NoError(t, err)
	assert.InDelta(t, 116.1, loc.Lon, 1e-9)

	loc, err = c.Resolve(ctx, CurrentLocation)
	require.NoError(t, err)
	assert.Equal(t, "上海市", loc.City)
	assert.InDelta(t, 121.5, loc.Lon, 1e-9)

	loc, err = c.Resolve(ctx, "故宫")
	require.NoError(t, err)
	assert.Equal(t, "110101", loc.Adcode)
}

func TestWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("extensions") == "all" {
			io.WriteString(w, `{"status":"1","forecasts":[{"city":"北京市","adcode":"110000","reporttime":"2026-10-15 11:00:00","casts":[
				{"date":"2026-10-15","dayweather":"晴","nightweather":"多云","daytemp":"20","nighttemp":"9"},
				{"date":"2026-10-16","dayweather":"小雨","nightweather":"小雨","daytemp":"15","nighttemp":"8"}]}]}`)
			return
		}
		io.WriteString(w, `{"status":"1","lives":[{"city":"北京市","adcode":"110000","weather":"晴","temperature":"18","winddirection":"北","windpower":"≤3","humidity":"40","reporttime":"2026-10-15 11:00:00"}]}`)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	live, err := c.LiveWeather(context.Background(), "110000")
	require.NoError(t, err)
	assert.Equal(t, "晴", live.Weather)
	assert.Equal(t, "18", live.Temperature)

	fc, err := c.Forecast(context.Background(), "110000")
	require.NoError(t, err)
	day, ok := fc.Day("2026-10-16")
	require.True(t, ok)
	assert.Equal(t, "小雨", day.DayWeather)
	_, ok = fc.Day("2026-10-20")
	assert.False(t, ok)
}

func TestTrafficAndRoute(t *testing.T) {
	srv := fakeAMap(t, map[string]string{
		"/v3/traffic/status/rectangle": `{"status":"1","trafficinfo":{"description":"整体畅通","roads":[
			{"name":"长安街","status":"1","direction":"东向西","speed":"40"},
			{"name":"二环","status":"3","direction":[],"speed":"8"}]}}`,
		"/v3/direction/driving": `{"status":"1","route":{"paths":[{"distance":"12000","duration":"1800","tolls":"0","steps":[
			{"instruction":"向东行驶","road":"长安街","distance":"500","duration":"60"}]}]}}`,
	})
	c := newTestClient(srv.URL)

	info, err := c.TrafficInRectangle(context.Background(), Rectangle(116.4, 39.9, 1000))
	require.NoError(t, err)
	assert.Equal(t, "整体畅通", info.Description)
	require.Len(t, info.Roads, 2)
	assert.Equal(t, 1, info.Roads[0].RoadStatus())
	assert.Equal(t, 3, info.Roads[1].RoadStatus())
	assert.Equal(t, "", info.Roads[1].Direction.String())

	path, err := c.Driving(context.Background(), "116.1,39.1", "116.2,39.2")
	require.NoError(t, err)
	assert.Equal(t, "12000", path.Distance.String())
	require.Len(t, path.Steps, 1)
	assert.Equal(t, "长安街", path.Steps[0].Road.String())
}

func TestRectangle(t *testing.T) {
	rect := Rectangle(116.4, 0, 111000)
	parts := strings.Split(rect, ";")
	require.Len(t, parts, 2)
	lon1, lat1, err := ParseLonLat(parts[0])
	require.NoError(t, err)
	lon2, lat2, err := ParseLonLat(parts[1])
	require.NoError(t, err)
	assert.InDelta(t, 2.0, lat2-lat1, 1e-6)
	assert.InDelta(t, 2.0, lon2-lon1, 1e-6)
}

func TestPlaceSearch(t *testing.T) {
	srv := fakeAMap(t, map[string]string{
		"/v3/place/around": `{"status":"1","pois":[{"name":"公共厕所(王府井)","type":"生活服务","address":"王府井大街","location":"116.41,39.91","distance":"120","tel":[],"biz_ext":{"rating":[],"cost":[]}}]}`,
		"/v3/place/text":   `{"status":"1","pois":[{"name":"故宫博物院","type":"风景名胜","address":"景山前街4号","location":"116.397,39.918","biz_ext":{"rating":"4.9"}}]}`,
	})
	c := newTestClient(srv.URL)

	pois, err := c.Around(context.Background(), "116.4,39.9", "公共厕所", 1000, 5)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "120", pois[0].Distance)
	assert.Empty(t, pois[0].Tel)
	assert.Empty(t, pois[0].Rating)

	pois, err = c.Search(context.Background(), "故宫", "", 1)
	require.NoError(t, err)
	require.Len(t, pois, 1)
	assert.Equal(t, "4.9", pois[0].Rating)
}
