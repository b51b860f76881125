package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/obstacle.alert/internal/httputil"
)

func TestNewThingSpeak_RequiresKey(t *testing.T) {
	_, err := NewThingSpeak(httputil.NewMockHTTPClient(), "  ")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestThingSpeak_UpdateURL(t *testing.T) {
	ts, err := NewThingSpeak(httputil.NewMockHTTPClient(), "KEY123")
	require.NoError(t, err)
	assert.Equal(t, "https://api.thingspeak.com/update?api_key=KEY123&field1=42", ts.UpdateURL(42))

	ts, err = NewThingSpeak(httputil.NewMockHTTPClient(), "K", WithBaseURL("http://sink.local/u?channel=9"), WithField("field2"))
	require.NoError(t, err)
	assert.Equal(t, "http://sink.local/u?channel=9&api_key=K&field2=7", ts.UpdateURL(7))
}

func TestThingSpeak_Upload(t *testing.T) {
	transportErr := errors.New("no route to host")
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusOK, "1234").
		AddResponse(http.StatusBadRequest, "0").
		AddErrorResponse(transportErr)

	ts, err := NewThingSpeak(mock, "KEY")
	require.NoError(t, err)

	require.NoError(t, ts.Upload(context.Background(), 55))

	err = ts.Upload(context.Background(), 56)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	assert.ErrorIs(t, ts.Upload(context.Background(), 57), transportErr)

	require.Equal(t, 3, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "55", req.URL.Query().Get("field1"))
	assert.Equal(t, "KEY", req.URL.Query().Get("api_key"))
	_, hasDeadline := req.Context().Deadline()
	assert.True(t, hasDeadline, "upload must carry a timeout")
}

func TestThingSpeak_UploadTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ts, err := NewThingSpeak(httputil.NewStandardClient(0), "KEY", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	err = ts.Upload(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
