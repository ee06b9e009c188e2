package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// RESTAdapter talks to a platform exposing entity collections over HTTP:
// GET  {base}/api/{entityType}          (list, query params for filters)
// PUT  {base}/api/{entityType}/{id}     (upsert one entity)
type RESTAdapter struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
}

// NewRESTAdapter creates an adapter for a REST platform side.
func NewRESTAdapter(name, baseURL, token string) Adapter {
	return &RESTAdapter{
		name:    name,
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *RESTAdapter) Name() string {
	return a.name
}

type listResponse struct {
	Data []Entity `json:"data"`
}

func (a *RESTAdapter) Fetch(ctx context.Context, entityType string, filter Filter, since *time.Time) ([]Entity, error) {
	endpoint := fmt.Sprintf("%s/api/%s", a.baseURL, url.PathEscape(entityType))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}

	q := req.URL.Query()
	for key, value := range filter {
		q.Set(key, fmt.Sprintf("%v", value))
	}
	if since != nil {
		q.Set("updated_since", since.UTC().Format(time.RFC3339))
	}
	req.URL.RawQuery = q.Encode()
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		// Network failures and timeouts are retryable.
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	if err := a.checkStatus(resp); err != nil {
		return nil, err
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode %s list from %s: %w", entityType, a.name, err)
	}

	return body.Data, nil
}

func (a *RESTAdapter) Update(ctx context.Context, entityType string, entity Entity) (Entity, error) {
	id := entity.ID()
	if id == "" {
		return nil, fmt.Errorf("entity of type %s has no id", entityType)
	}

	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", entityType, id, err)
	}

	endpoint := fmt.Sprintf("%s/api/%s/%s", a.baseURL, url.PathEscape(entityType), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, Transient(err)
	}
	defer resp.Body.Close()

	if err := a.checkStatus(resp); err != nil {
		return nil, err
	}

	var updated Entity
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		// Some platforms return an empty body on update; fall back to the
		// payload we pushed.
		return entity, nil
	}

	return updated, nil
}

func (a *RESTAdapter) setHeaders(req *http.Request) {
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	req.Header.Set("Accept", "application/json")
}

func (a *RESTAdapter) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	err := fmt.Errorf("%s returned status %d", a.name, resp.StatusCode)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return Transient(err)
	}
	return err
}
