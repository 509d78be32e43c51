// Package pipedrive implements the REST client for the Pipedrive v1 API.
//
// Errors returned by this package carry an explicit classification kind
// and keep recognizable substrings ("rate limit", "unauthorized",
// "timeout") so they classify correctly even after wrapping.
package pipedrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/sync/classify"
	"github.com/vietddude/pipesync/internal/sync/metrics"
)

const defaultBaseURL = "https://api.pipedrive.com/v1"

// pageLimit is Pipedrive's maximum page size.
const pageLimit = 500

// Client is a Pipedrive API client bound to one API token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint (tests, regional domains).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for one user's API token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is Pipedrive's standard response wrapper.
type envelope struct {
	Success        bool            `json:"success"`
	Data           json.RawMessage `json:"data"`
	Error          string          `json:"error"`
	ErrorInfo      string          `json:"error_info"`
	AdditionalData struct {
		Pagination struct {
			MoreItemsInCollection bool `json:"more_items_in_collection"`
			NextStart             int  `json:"next_start"`
		} `json:"pagination"`
	} `json:"additional_data"`
}

// TestConnection verifies the token by fetching the current user.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.get(ctx, "users/me", nil)
	return err
}

// GetPersons fetches all persons, paginating until exhaustion. A non-nil
// since restricts the result to persons updated at or after it.
func (c *Client) GetPersons(ctx context.Context, since *time.Time) ([]domain.RemotePerson, error) {
	var persons []domain.RemotePerson

	start := 0
	for {
		params := url.Values{}
		params.Set("start", strconv.Itoa(start))
		params.Set("limit", strconv.Itoa(pageLimit))
		params.Set("sort", "update_time ASC")
		if since != nil {
			params.Set("since_timestamp", since.UTC().Format("2006-01-02 15:04:05"))
		}

		env, err := c.get(ctx, "persons", params)
		if err != nil {
			return nil, err
		}

		var page []domain.RemotePerson
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &page); err != nil {
				return nil, classify.NewTagged(classify.KindExternalAPI,
					"pipedrive persons payload malformed", err)
			}
		}
		persons = append(persons, page...)

		if !env.AdditionalData.Pagination.MoreItemsInCollection {
			return persons, nil
		}
		start = env.AdditionalData.Pagination.NextStart
	}
}

// GetOrganizations fetches all organizations, paginating until exhaustion.
func (c *Client) GetOrganizations(ctx context.Context) ([]domain.RemoteOrganization, error) {
	var orgs []domain.RemoteOrganization

	start := 0
	for {
		params := url.Values{}
		params.Set("start", strconv.Itoa(start))
		params.Set("limit", strconv.Itoa(pageLimit))

		env, err := c.get(ctx, "organizations", params)
		if err != nil {
			return nil, err
		}

		var page []domain.RemoteOrganization
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &page); err != nil {
				return nil, classify.NewTagged(classify.KindExternalAPI,
					"pipedrive organizations payload malformed", err)
			}
		}
		orgs = append(orgs, page...)

		if !env.AdditionalData.Pagination.MoreItemsInCollection {
			return orgs, nil
		}
		start = env.AdditionalData.Pagination.NextStart
	}
}

// GetOrganizationDetails fetches one organization for enrichment.
func (c *Client) GetOrganizationDetails(ctx context.Context, remoteOrgID string) (*domain.RemoteOrganization, error) {
	env, err := c.get(ctx, "organizations/"+url.PathEscape(remoteOrgID), nil)
	if err != nil {
		return nil, err
	}

	var org domain.RemoteOrganization
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(env.Data, &org); err != nil {
		return nil, classify.NewTagged(classify.KindExternalAPI,
			"pipedrive organization payload malformed", err)
	}
	return &org, nil
}

// SearchPersons runs a term search over persons.
func (c *Client) SearchPersons(ctx context.Context, term string) ([]domain.RemotePerson, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("fields", "name,email")

	env, err := c.get(ctx, "persons/search", params)
	if err != nil {
		return nil, err
	}

	// Search nests items one level deeper than list endpoints.
	var payload struct {
		Items []struct {
			Item domain.RemotePerson `json:"item"`
		} `json:"items"`
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, classify.NewTagged(classify.KindExternalAPI,
				"pipedrive search payload malformed", err)
		}
	}

	persons := make([]domain.RemotePerson, 0, len(payload.Items))
	for _, it := range payload.Items {
		persons = append(persons, it.Item)
	}
	return persons, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*envelope, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.token)

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode())
	metrics.RemoteCalls.WithLabelValues(path).Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		tagged := classify.NewTagged(classify.KindNetwork,
			"pipedrive request failed: network error", err)
		metrics.RemoteErrors.WithLabelValues(path, string(classify.KindNetwork)).Inc()
		return nil, tagged
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify.NewTagged(classify.KindNetwork,
			"pipedrive response read failed: network error", err)
	}

	if err := c.checkStatus(resp, body); err != nil {
		metrics.RemoteErrors.WithLabelValues(path, string(classify.Classify(err).Kind)).Inc()
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, classify.NewTagged(classify.KindExternalAPI,
			"pipedrive envelope malformed", err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		err := classify.Errorf(classify.KindExternalAPI, "pipedrive error: %s", msg)
		metrics.RemoteErrors.WithLabelValues(path, string(classify.KindExternalAPI)).Inc()
		return nil, err
	}
	return &env, nil
}

func (c *Client) checkStatus(resp *http.Response, body []byte) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return classify.Errorf(classify.KindRateLimit,
			"pipedrive rate limit exceeded (429), retry after: %s",
			resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return classify.Errorf(classify.KindAuthentication,
			"pipedrive request unauthorized (%d): invalid api token", resp.StatusCode)
	case resp.StatusCode >= 500:
		return classify.Errorf(classify.KindExternalAPI,
			"pipedrive service unavailable (%d): %s", resp.StatusCode, truncate(body, 200))
	case resp.StatusCode >= 400:
		return classify.Errorf(classify.KindValidation,
			"pipedrive rejected request (%d): %s", resp.StatusCode, truncate(body, 200))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
