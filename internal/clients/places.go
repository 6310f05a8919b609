package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/Tani1964/DelphiX/internal/model"
)

const placesNearbyURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"

// PlacesClient finds hospitals near a point via the Google Places API.
type PlacesClient struct {
	apiKey     string
	httpClient *http.Client
}

func NewPlacesClient(apiKey string, timeout time.Duration) *PlacesClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PlacesClient{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type placesResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name     string  `json:"name"`
		Vicinity string  `json:"vicinity"`
		Address  string  `json:"formatted_address"`
		Rating   float64 `json:"rating"`
		PlaceID  string  `json:"place_id"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Nearby returns hospitals within radius meters of (lat, lng), closest first.
func (c *PlacesClient) Nearby(ctx context.Context, lat, lng float64, radius int) ([]model.Hospital, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("maps api key not set")
	}

	query := url.Values{}
	query.Set("location", fmt.Sprintf("%f,%f", lat, lng))
	query.Set("radius", fmt.Sprintf("%d", radius))
	query.Set("type", "hospital")
	query.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, placesNearbyURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("places api returned status %d", resp.StatusCode)
	}

	var decoded placesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded.Status != "OK" && decoded.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places api error: %s", decoded.Status)
	}

	hospitals := make([]model.Hospital, 0, len(decoded.Results))
	for _, place := range decoded.Results {
		address := place.Vicinity
		if address == "" {
			address = place.Address
		}
		hospitals = append(hospitals, model.Hospital{
			PlaceID:  place.PlaceID,
			Name:     place.Name,
			Address:  address,
			Lat:      place.Geometry.Location.Lat,
			Lng:      place.Geometry.Location.Lng,
			Rating:   place.Rating,
			Distance: haversineMeters(lat, lng, place.Geometry.Location.Lat, place.Geometry.Location.Lng),
		})
	}
	sort.Slice(hospitals, func(i, j int) bool {
		return hospitals[i].Distance < hospitals[j].Distance
	})
	return hospitals, nil
}

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
