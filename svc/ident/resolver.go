package ident

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// FallbackIdentity is used when the caller's address cannot be determined.
// A degraded identity must never block a write outright.
const FallbackIdentity = "unknown"

var ErrResolutionFailed = errors.New("identity resolution failed")

// Resolver asks an external echo-IP service for the server's public address.
// It is consulted only when the request address is local or unparsable, and
// every call is hard time-bounded.
type Resolver struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

func NewResolver(endpoint string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
	}
}

func (r *Resolver) PublicIP(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, nil)
	if err != nil {
		return "", errors.Wrap(ErrResolutionFailed, err.Error())
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrap(ErrResolutionFailed, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Wrapf(ErrResolutionFailed, "status %d", resp.StatusCode)
	}
	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(ErrResolutionFailed, err.Error())
	}
	if net.ParseIP(body.IP) == nil {
		return "", errors.Wrapf(ErrResolutionFailed, "bad ip %q", body.IP)
	}
	return body.IP, nil
}

// IsLocal reports whether an address is loopback, unspecified, or not an IP
// at all, i.e. useless as a rate-limit identity.
func IsLocal(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsUnspecified()
}
