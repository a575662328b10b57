package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type API struct {
	client  *http.Client
	baseURL string
}

func NewAPI(baseURL string) *API {
	return NewAPIWithClient(baseURL, http.DefaultClient)
}

func NewAPIWithClient(baseURL string, client *http.Client) *API {
	return &API{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (a *API) BaseURL() string {
	return a.baseURL
}

func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	if params != nil {
		path += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s", a.baseURL, path), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: bad status: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Open issues a GET for an absolute or base-relative URL and returns the body
// stream with its advertised length (-1 when unknown).
func (a *API) Open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = a.baseURL + "/" + strings.TrimLeft(rawURL, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("bad status: %s", resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}
