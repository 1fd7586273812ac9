package host

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Default public address discovery settings.
var (
	DefaultIPEndpoints = []string{
		"https://api.ipify.org",
		"https://ifconfig.me",
		"https://icanhazip.com",
	}
	DefaultIPFallback = "127.0.0.1"
)

// IPResolver discovers the host's public address.
type IPResolver struct {
	client    *http.Client
	endpoints []string
	fallback  string
	logger    *slog.Logger
}

// NewIPResolver creates a resolver asking endpoints in order. Nil or empty
// arguments take the defaults.
func NewIPResolver(client *http.Client, endpoints []string, fallback string, logger *slog.Logger) *IPResolver {
	if client == nil {
		retryClient := retryablehttp.NewClient()
		retryClient.RetryMax = 2
		retryClient.RetryWaitMin = 500 * time.Millisecond
		retryClient.RetryWaitMax = 2 * time.Second
		retryClient.HTTPClient.Timeout = 5 * time.Second
		retryClient.Logger = nil
		client = retryClient.StandardClient()
	}
	if len(endpoints) == 0 {
		endpoints = DefaultIPEndpoints
	}
	if fallback == "" {
		fallback = DefaultIPFallback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IPResolver{client: client, endpoints: endpoints, fallback: fallback, logger: logger.With("component", "public-ip")}
}

// PublicIP returns the first valid address an endpoint answers with, or the
// fallback when none does.
func (r *IPResolver) PublicIP(ctx context.Context) string {
	for _, endpoint := range r.endpoints {
		ip, err := r.ask(ctx, endpoint)
		if err != nil {
			r.logger.Debug("public address lookup failed", "endpoint", endpoint, "error", err)
			continue
		}
		if ip != "" {
			return ip
		}
	}
	r.logger.Warn("public address unknown, using fallback", "address", r.fallback)
	return r.fallback
}

func (r *IPResolver) ask(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "curl/8")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", nil
	}
	return ip, nil
}
