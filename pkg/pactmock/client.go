package pactmock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/pacterror"
)

// Client drives a pact-mock admin API.
type Client struct {
	client http.Client
	url    string
}

func NewClient(url string) *Client {
	return &Client{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: strings.TrimSuffix(url, "/"),
	}
}

func (c *Client) IsReady() error {
	return c.do(http.MethodGet, "/ready", nil, nil)
}

func (c *Client) CreateMockServer(p *Pact, host string, port int) (int, error) {
	content, err := json.Marshal(p)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal pact")
	}

	var res configuration.CreateMockServerResponse
	err = c.do(http.MethodPost, "/mock-servers", configuration.CreateMockServerRequest{
		Pact: content,
		Host: host,
		Port: port,
	}, &res)
	return res.Port, err
}

func (c *Client) MockServers() ([]MockServer, error) {
	var servers []MockServer
	err := c.do(http.MethodGet, "/mock-servers", nil, &servers)
	return servers, err
}

func (c *Client) MatchedSuccessfully(port int) (bool, error) {
	var res configuration.MatchedResponse
	err := c.do(http.MethodGet, fmt.Sprintf("/mock-servers/%d/matched", port), nil, &res)
	return res.Matched, err
}

func (c *Client) Mismatches(port int) ([]MismatchRecord, error) {
	var records []MismatchRecord
	err := c.do(http.MethodGet, fmt.Sprintf("/mock-servers/%d/mismatches", port), nil, &records)
	return records, err
}

func (c *Client) Requests(port int) ([]RecordedRequest, error) {
	var requests []RecordedRequest
	err := c.do(http.MethodGet, fmt.Sprintf("/mock-servers/%d/requests", port), nil, &requests)
	return requests, err
}

func (c *Client) WaitForInteraction(port int, interaction string, count int) error {
	q := url.Values{}
	q.Add("interaction", interaction)
	q.Add("count", strconv.Itoa(count))
	return c.do(http.MethodGet, fmt.Sprintf("/mock-servers/%d/wait?%s", port, q.Encode()), nil, nil)
}

func (c *Client) WaitForAll(port int) error {
	return c.do(http.MethodGet, fmt.Sprintf("/mock-servers/%d/wait", port), nil, nil)
}

// WritePactFile writes the pact of the mock server on port. An empty dir uses
// the directory the admin API is configured with.
func (c *Client) WritePactFile(port int, dir string, overwrite bool) (string, error) {
	var res configuration.WritePactResponse
	err := c.do(http.MethodPost, fmt.Sprintf("/mock-servers/%d/pact", port), configuration.WritePactRequest{
		Dir:       dir,
		Overwrite: overwrite,
	}, &res)
	return res.Path, err
}

func (c *Client) Cleanup(port int) error {
	return c.do(http.MethodDelete, fmt.Sprintf("/mock-servers/%d", port), nil, nil)
}

// Reset stops every mock server.
func (c *Client) Reset() error {
	return c.do(http.MethodDelete, "/mock-servers", nil, nil)
}

func (c *Client) do(method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		content, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request")
		}
		body = bytes.NewReader(content)
	}

	req, err := http.NewRequest(method, c.url+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return responseError(res.StatusCode, responseBody)
	}
	if out == nil || len(responseBody) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(responseBody, out), "failed to decode response")
}

// responseError restores the error kind the admin API reported.
func responseError(status int, body []byte) error {
	var apiErr httpresponse.APIError
	message := string(body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.ErrorMessage != "" {
		message = apiErr.ErrorMessage
	}

	kind := map[int]pacterror.Kind{
		http.StatusBadRequest:     pacterror.KindConfiguration,
		http.StatusNotFound:       pacterror.KindUnknownMockServer,
		http.StatusConflict:       pacterror.KindMockServerBind,
		http.StatusRequestTimeout: pacterror.KindInteractionsTimeout,
	}[status]
	if kind == "" {
		return errors.Errorf("admin API responded %d: %s", status, message)
	}
	return &pacterror.Error{Kind: kind, Message: message}
}
