package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// apiClient is the shared HTTP client with timeout.
var apiClient = &http.Client{
	Timeout: DefaultClientTimeout,
}

// planClient executes plans, which block for the sum of their waits.
var planClient = &http.Client{
	Timeout: 10 * time.Minute,
}

// apiGet performs a GET request to the API with timeout.
func apiGet(path string) ([]byte, error) {
	resp, err := apiClient.Get(apiAddr + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, body)
	}

	return body, nil
}

// apiPost performs a POST request to the API with timeout.
func apiPost(path string, data interface{}) ([]byte, error) {
	status, body, err := post(apiClient, path, data)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, apiError(status, body)
	}
	return body, nil
}

// apiExecutePlan posts a plan and returns the status code with the body, so
// callers can read the partial log of an aborted plan.
func apiExecutePlan(data interface{}) (int, []byte, error) {
	return post(planClient, "/execute_plan", data)
}

func post(client *http.Client, path string, data interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return 0, nil, err
	}

	resp, err := client.Post(apiAddr+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// apiError prefers the {"detail": "..."} message over the raw body.
func apiError(status int, body []byte) error {
	var e struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if msg, ok := e.Detail.(string); ok {
			return fmt.Errorf("API error (%d): %s", status, msg)
		}
	}
	return fmt.Errorf("API error (%d): %s", status, string(bytes.TrimSpace(body)))
}

// CheckHealth checks if the daemon is healthy and returns the health response.
// Unlike other API calls, this returns the parsed HealthResponse even on non-200
// responses, allowing callers to inspect the health payload alongside the error.
func CheckHealth() (*HealthResponse, error) {
	resp, err := apiClient.Get(apiAddr + "/health")
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	// Return both payload and error on non-200 status
	if resp.StatusCode != http.StatusOK {
		return &health, fmt.Errorf("health check failed (status %d): %s", resp.StatusCode, string(body))
	}

	return &health, nil
}

// HealthResponse matches the server's health response structure.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}
