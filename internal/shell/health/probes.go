package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/flowstack/internal/core/monitoring"
	"github.com/artpar/flowstack/internal/shell/docker"
	"github.com/hashicorp/go-retryablehttp"
)

// =============================================================================
// Container Probe
// =============================================================================

// ContainerInspector is the part of the Docker client the container probe uses.
type ContainerInspector interface {
	InspectContainer(ctx context.Context, containerID string) (*docker.ContainerInfo, error)
}

// ContainerProbe is ready when the runtime reports the container healthy, or
// running when the image declares no health check.
type ContainerProbe struct {
	client    ContainerInspector
	container string
}

// NewContainerProbe creates a probe for the named container.
func NewContainerProbe(client ContainerInspector, container string) *ContainerProbe {
	return &ContainerProbe{client: client, container: container}
}

// Ready implements Probe.
func (p *ContainerProbe) Ready(ctx context.Context) (bool, error) {
	info, err := p.client.InspectContainer(ctx, p.container)
	if err != nil {
		return false, err
	}
	return monitoring.Ready(string(info.Status), info.HealthPtr()), nil
}

// Describe implements Probe.
func (p *ContainerProbe) Describe() string {
	return "container " + p.container
}

// =============================================================================
// HTTP Probe
// =============================================================================

// HTTPProbe is ready when a GET of its URL answers with a 2xx status.
type HTTPProbe struct {
	client *http.Client
	url    string
}

// NewHTTPProbe creates a probe for url. A nil client gets a short-timeout
// client that retries once on connection errors.
func NewHTTPProbe(client *http.Client, url string) *HTTPProbe {
	if client == nil {
		client = ProbeClient()
	}
	return &HTTPProbe{client: client, url: url}
}

// ProbeClient returns the HTTP client used by probes.
func ProbeClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 1
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil
	// The gate polls again; a non-2xx answer is a result, not an error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return retryClient.StandardClient()
}

// Ready implements Probe.
func (p *HTTPProbe) Ready(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return false, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("GET %s: status %d", p.url, resp.StatusCode)
	}
	return true, nil
}

// Describe implements Probe.
func (p *HTTPProbe) Describe() string {
	return "GET " + p.url
}
