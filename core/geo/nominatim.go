package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/siherrmann/pano/helper"
	"golang.org/x/time/rate"
)

// NominatimGeocoder resolves addresses with an OpenStreetMap Nominatim
// search endpoint. Requests are rate limited.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
	limiter   *rate.Limiter
}

func NewNominatimGeocoder(baseURL, userAgent string, requestsPerSecond float64) *NominatimGeocoder {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &NominatimGeocoder{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    http.DefaultClient,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, 0, helper.NewError("geocode rate limit", err)
	}

	u, err := url.Parse(g.BaseURL)
	if err != nil {
		return 0, 0, helper.NewError("parse geocoder url", err)
	}
	u = u.JoinPath("search")
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, 0, helper.NewError("create geocode request", err)
	}
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return 0, 0, helper.NewError("geocode request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, helper.NewError("geocode request", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return 0, 0, helper.NewError("decode geocode response", err)
	}
	if len(places) == 0 {
		return 0, 0, helper.NewError("geocode "+address, ErrNoCoordinates)
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return 0, 0, helper.NewError("parse latitude", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return 0, 0, helper.NewError("parse longitude", err)
	}

	return lat, lon, nil
}
