package mediator_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-fleet-portal/internal/config"
	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/mediator"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// captureTransport records the Authorization header of every request it sees.
type captureTransport struct {
	mu      sync.Mutex
	headers []string
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	c.headers = append(c.headers, req.Header.Get("Authorization"))
	c.mu.Unlock()
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func (c *captureTransport) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[len(c.headers)-1]
}

func TestTransportAttachesCredential(t *testing.T) {
	const apiBase = "https://api.fleet.test/api"

	tests := []struct {
		name   string
		url    string
		source mediator.CredentialFunc
		header string
		want   string
	}{
		{
			name:   "domain call gets the bearer",
			url:    apiBase + "/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "Bearer tok-1",
		},
		{
			name:   "no active persona",
			url:    apiBase + "/owners/o1/fleets",
			source: func(context.Context) (string, error) { return "", errors.ErrNoCredential },
			want:   "",
		},
		{
			name:   "public reference data",
			url:    apiBase + "/cities?countryId=ie",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "identity provider",
			url:    "https://login.fleet.test/oauth2/token",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "other host",
			url:    "https://cdn.fleet.test/api/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "host that extends the API host",
			url:    "https://api.fleet.test.evil.example/api/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "host with a longer label",
			url:    "https://api.fleet.testing/api/x",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "different port",
			url:    "https://api.fleet.test:8443/api/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "plain http",
			url:    "http://api.fleet.test/api/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "path that extends the base path",
			url:    "https://api.fleet.test/apix/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "",
		},
		{
			name:   "base path itself",
			url:    apiBase,
			source: func(context.Context) (string, error) { return "tok-1", nil },
			want:   "Bearer tok-1",
		},
		{
			name:   "explicit header wins",
			url:    apiBase + "/Owners/me",
			source: func(context.Context) (string, error) { return "tok-1", nil },
			header: "Bearer explicit",
			want:   "Bearer explicit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture := &captureTransport{}
			transport, err := mediator.NewTransport(apiBase, tt.source,
				mediator.WithBase(capture),
				mediator.WithExcludedPrefixes("https://login.fleet.test/"),
				mediator.WithPublicPaths(config.PublicPaths{"/api/Countries", "/api/Cities"}),
			)
			require.NoError(t, err)

			req, err := http.NewRequest(http.MethodGet, tt.url, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			_, err = transport.RoundTrip(req)
			require.NoError(t, err)
			require.Equal(t, tt.want, capture.last())
			if tt.header == "" {
				require.Empty(t, req.Header.Get("Authorization"), "caller's request must not be mutated")
			}
		})
	}
}

func TestTransportFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := mediator.CredentialFunc(func(context.Context) (string, error) {
		<-release
		return "late", nil
	})

	capture := &captureTransport{}
	transport, err := mediator.NewTransport("https://api.fleet.test", blocking,
		mediator.WithBase(capture),
		mediator.WithFetchTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, "https://api.fleet.test/api/Owners/me", nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = transport.RoundTrip(req)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Empty(t, capture.last())
}

func TestNewFromConfig(t *testing.T) {
	f := &config.File{APIBaseURL: "https://api.fleet.test/"}
	f.Identity.Issuer = "https://login.fleet.test"

	capture := &captureTransport{}
	transport, err := mediator.New(config.FromFile(f),
		mediator.CredentialFunc(func(context.Context) (string, error) { return "tok", nil }),
		mediator.WithBase(capture))
	require.NoError(t, err)

	for _, u := range []string{
		"https://login.fleet.test/authorize",
		"https://api.fleet.test/api/Countries",
		"https://api.fleet.test/api/Fleets/f1",
	} {
		req, _ := http.NewRequest(http.MethodGet, u, nil)
		_, err := transport.RoundTrip(req)
		require.NoError(t, err)
	}
	require.Equal(t, []string{"", "", "Bearer tok"}, capture.headers)

	_, err = mediator.NewTransport("https://api.fleet.test", nil)
	require.Error(t, err)
}

func TestChainAndLogging(t *testing.T) {
	var order []string
	tag := func(name string) mediator.Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return mediator.RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}

	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get(mediator.RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	client := &http.Client{Transport: mediator.Chain(http.DefaultTransport, tag("first"), mediator.Logging(logger), tag("second"))}

	resp, err := client.Get(server.URL + "/api/Fleets")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, []string{"first", "second"}, order)
	require.NotEmpty(t, requestID)
	require.Contains(t, buf.String(), requestID)
	require.Contains(t, buf.String(), `"status":204`)
	require.Contains(t, buf.String(), `"path":"/api/Fleets"`)
}
