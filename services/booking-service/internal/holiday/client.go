package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anathi-mjali/branchbook/services/booking-service/internal/model"
)

// Checker answers whether a date is a public holiday.
type Checker interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// NagerClient looks up public holidays from the Nager.Date API and caches
// the per-(country, year) result set.
type NagerClient struct {
	httpClient *http.Client
	baseURL    string
	country    string
	cache      *yearCache
}

const defaultBaseURL = "https://date.nager.at"

func NewNagerClient(country string, timeout time.Duration) *NagerClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NagerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		country:    country,
		cache:      newYearCache(),
	}
}

// WithBaseURL points the client at a different API host, for tests.
func (c *NagerClient) WithBaseURL(baseURL string) *NagerClient {
	c.baseURL = baseURL
	return c
}

func (c *NagerClient) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	day := model.Date(date)
	holidays, err := c.holidays(ctx, day.Year())
	if err != nil {
		return false, err
	}
	_, ok := holidays[day.Format(model.DateLayout)]
	return ok, nil
}

func (c *NagerClient) holidays(ctx context.Context, year int) (map[string]struct{}, error) {
	if cached, ok := c.cache.get(c.country, year, time.Now()); ok {
		return cached, nil
	}

	url := fmt.Sprintf("%s/api/v3/PublicHolidays/%d/%s", c.baseURL, year, c.country)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday lookup: unexpected status %d", resp.StatusCode)
	}

	var payload []struct {
		Date string `json:"date"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("holiday lookup: %w", err)
	}

	dates := make(map[string]struct{}, len(payload))
	for _, h := range payload {
		dates[h.Date] = struct{}{}
	}
	c.cache.put(c.country, year, dates, time.Now())
	return dates, nil
}
