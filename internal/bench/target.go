package bench

import (
	"net/http"
	"time"
)

// Target describes one endpoint: the request that is issued
// repeatedly during a campaign.
type Target struct {
	// ID identifies the target in stores, summaries and reports.
	ID string `json:"id" yaml:"id"`

	// Name is an optional display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method; empty means GET.
	Method string `json:"method" yaml:"method"`

	// URL is the absolute request URL.
	URL string `json:"url" yaml:"url"`

	// Headers are sent with every request.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent with every request.
	Body []byte `json:"-" yaml:"-"`

	// Timeout bounds a single request; zero leaves it to the transport.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ExpectStatus lists accepted status codes; empty accepts any 2xx.
	ExpectStatus []int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`
}

// DisplayName returns Name, falling back to ID.
func (t *Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// HTTPMethod returns the method to use, defaulting to GET.
func (t *Target) HTTPMethod() string {
	if t.Method == "" {
		return http.MethodGet
	}
	return t.Method
}

// Expects reports whether a response with the given status code counts as a
// success for this target.
func (t *Target) Expects(statusCode int) bool {
	if len(t.ExpectStatus) == 0 {
		return statusCode >= 200 && statusCode < 300
	}
	for _, code := range t.ExpectStatus {
		if code == statusCode {
			return true
		}
	}
	return false
}
