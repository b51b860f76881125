package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/obstacle.alert/internal/httputil"
	"github.com/banshee-data/obstacle.alert/internal/monitoring"
)

// DefaultThingSpeakURL is the channel update endpoint. The API key and the
// reading are added as query parameters.
const DefaultThingSpeakURL = "https://api.thingspeak.com/update"

// DefaultUploadTimeout bounds a single upload so a stalled network cannot
// hold up sensor ingestion.
const DefaultUploadTimeout = 4 * time.Second

// DefaultField is the channel field the distance is written to.
const DefaultField = "field1"

var ErrMissingAPIKey = errors.New("thingspeak api key is empty")

// StatusError is returned when the endpoint answers with anything but 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("thingspeak returned status %d", e.StatusCode)
}

// ThingSpeak uploads readings with a GET to the channel update endpoint.
type ThingSpeak struct {
	client  httputil.HTTPClient
	baseURL string
	apiKey  string
	field   string
	timeout time.Duration
}

// ThingSpeakOption configures a ThingSpeak sink.
type ThingSpeakOption func(*ThingSpeak)

func WithBaseURL(u string) ThingSpeakOption {
	return func(t *ThingSpeak) {
		if u != "" {
			t.baseURL = u
		}
	}
}

func WithField(f string) ThingSpeakOption {
	return func(t *ThingSpeak) {
		if f != "" {
			t.field = f
		}
	}
}

func WithTimeout(d time.Duration) ThingSpeakOption {
	return func(t *ThingSpeak) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewThingSpeak creates a sink writing with apiKey through client.
func NewThingSpeak(client httputil.HTTPClient, apiKey string, opts ...ThingSpeakOption) (*ThingSpeak, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	t := &ThingSpeak{
		client:  client,
		baseURL: DefaultThingSpeakURL,
		apiKey:  apiKey,
		field:   DefaultField,
		timeout: DefaultUploadTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	if _, err := url.Parse(t.baseURL); err != nil {
		return nil, fmt.Errorf("invalid thingspeak url %q: %w", t.baseURL, err)
	}
	return t, nil
}

// UpdateURL builds the request URL for one reading.
func (t *ThingSpeak) UpdateURL(distanceCM int) string {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set(t.field, strconv.Itoa(distanceCM))
	sep := "?"
	if strings.Contains(t.baseURL, "?") {
		sep = "&"
	}
	return t.baseURL + sep + q.Encode()
}

// Upload sends one reading. Only HTTP 200 counts as success.
func (t *ThingSpeak) Upload(ctx context.Context, distanceCM int) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.UpdateURL(distanceCM), nil)
	if err != nil {
		return fmt.Errorf("build thingspeak request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("thingspeak request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	monitoring.Logf("ThingSpeak updated: %dcm", distanceCM)
	return nil
}
