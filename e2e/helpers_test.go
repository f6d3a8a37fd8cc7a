//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/gomega"
)

// ── HTTP helpers ──────────────────────────────────────────────────────────────

var httpClient = &http.Client{Timeout: 30 * time.Second}

// get performs a GET request with an optional bearer token.
func get(url, token string) *http.Response {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		panic(fmt.Sprintf("e2e: failed to create GET request: %v", err))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		panic(fmt.Sprintf("e2e: GET %s failed: %v", url, err))
	}
	return resp
}

// post performs a POST request with a JSON body and optional bearer token.
func post(url string, body interface{}, token string) *http.Response {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("e2e: failed to marshal body: %v", err))
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, url, bodyReader)
	if err != nil {
		panic(fmt.Sprintf("e2e: failed to create POST request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		panic(fmt.Sprintf("e2e: POST %s failed: %v", url, err))
	}
	return resp
}

// readJSON decodes and closes the response body.
func readJSON(resp *http.Response) map[string]interface{} {
	defer resp.Body.Close()
	var m map[string]interface{}
	ExpectWithOffset(1, json.NewDecoder(resp.Body).Decode(&m)).To(Succeed())
	return m
}

// status returns the status code and closes the body.
func status(resp *http.Response) int {
	_ = resp.Body.Close()
	return resp.StatusCode
}
