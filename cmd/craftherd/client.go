package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient talks to a running craftherd daemon over its control API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8420"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) get(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func (c *APIClient) send(method, path string, body any, out any) error {
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
			return fmt.Errorf("API error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("API error: %s", errorResp.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) Status() (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.get("/status", &raw)
	return raw, err
}

func (c *APIClient) Roster() (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.get("/roster", &raw)
	return raw, err
}

func (c *APIClient) Start(params any) error {
	return c.send(http.MethodPost, "/start", params, nil)
}

func (c *APIClient) Stop() error {
	return c.send(http.MethodPost, "/stop", nil, nil)
}

func (c *APIClient) Kill() error {
	return c.send(http.MethodPost, "/kill", nil, nil)
}

func (c *APIClient) SendCommand(command string) error {
	return c.send(http.MethodPost, "/command", map[string]string{"command": command}, nil)
}

func (c *APIClient) GetAutoRestart() (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.get("/autorestart", &raw)
	return raw, err
}

func (c *APIClient) SetAutoRestart(cfg any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.send(http.MethodPut, "/autorestart", cfg, &raw)
	return raw, err
}
