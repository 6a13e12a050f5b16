// Package webfetch retrieves web pages for FETCH directives. Every URL is
// validated against private-network targets before any connection is made.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/inbucket/html2text"

	"github.com/sandevgo/aide/internal/core"
	"github.com/sandevgo/aide/pkg/retry"
)

const (
	maxResponseSize  = 1 << 20 // 1MB of raw HTML
	maxContentLength = 50000   // characters of extracted text
	defaultTimeout   = 15 * time.Second
)

// ErrBlocked marks URLs rejected by the private-network guard.
type ErrBlocked struct {
	Reason string
}

func (e ErrBlocked) Error() string {
	return "blocked url: " + e.Reason
}

var blockedDomainPatterns = []string{
	"localhost",
	"internal",
	"intranet",
	"corp",
	".internal",
	".local",
	".localhost",
}

var blockedNetworks = mustParseNetworks([]string{
	"10.0.0.0/8",     // Private Class A
	"172.16.0.0/12",  // Private Class B
	"192.168.0.0/16", // Private Class C
	"127.0.0.0/8",    // Loopback
	"169.254.0.0/16", // Link-local
	"224.0.0.0/4",    // Multicast
	"240.0.0.0/4",    // Reserved
	"0.0.0.0/8",      // Current network
	"100.64.0.0/10",  // Shared address space (CGN)
	"198.18.0.0/15",  // Benchmark testing
	"::1/128",        // IPv6 loopback
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
})

func mustParseNetworks(cidrs []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

type Fetcher struct {
	client  *http.Client
	retrier *retry.Retrier
	audit   core.AuditRecorder
	resolve func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func New(audit core.AuditRecorder) *Fetcher {
	return NewWithTimeout(defaultTimeout, nil, audit)
}

func NewWithTimeout(timeout time.Duration, retryCfg *retry.Config, audit core.AuditRecorder) *Fetcher {
	if retryCfg == nil {
		retryCfg = retry.NewDefaultConfig()
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		retrier: retry.NewRetrier(retryCfg),
		audit:   audit,
		resolve: net.DefaultResolver.LookupIPAddr,
	}
}

// Fetch retrieves a page and returns its extracted text, capped at
// maxContentLength characters.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (core.FetchedPage, error) {
	if err := f.validate(ctx, rawURL); err != nil {
		var blocked ErrBlocked
		if errors.As(err, &blocked) && f.audit != nil {
			f.audit.Record(ctx, core.SecurityEvent{
				Kind:     core.EventBlockedFetch,
				Fragment: rawURL,
				Details:  map[string]string{"reason": blocked.Reason},
			})
		}
		return core.FetchedPage{}, err
	}

	var page core.FetchedPage
	err := f.retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", core.AideUserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
		}

		ct := resp.Header.Get("Content-Type")
		if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") {
			return fmt.Errorf("unsupported content type: %s", ct)
		}

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		var text string
		if strings.Contains(ct, "text/plain") {
			text = string(raw)
		} else {
			text, err = html2text.FromString(string(raw), html2text.Options{
				OmitLinks:    false,
				PrettyTables: true,
			})
			if err != nil {
				return fmt.Errorf("failed to extract text: %w", err)
			}
		}

		page = core.FetchedPage{
			URL:     resp.Request.URL.String(),
			Title:   extractTitle(string(raw)),
			Content: clampContent(text),
		}
		return nil
	})
	if err != nil {
		return core.FetchedPage{}, err
	}
	return page, nil
}

func (f *Fetcher) validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ErrBlocked{Reason: "invalid URL format"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrBlocked{Reason: "only HTTP and HTTPS URLs are allowed"}
	}
	host := u.Hostname()
	if host == "" {
		return ErrBlocked{Reason: "no hostname in URL"}
	}
	if hostnameBlocked(host) {
		return ErrBlocked{Reason: "blocked hostname"}
	}

	// DNS must resolve, and no resolved address may land in a private range
	addrs, err := f.resolve(ctx, host)
	if err != nil || len(addrs) == 0 {
		return ErrBlocked{Reason: "hostname does not resolve"}
	}
	for _, addr := range addrs {
		if ipBlocked(addr.IP) {
			return ErrBlocked{Reason: "URL resolves to blocked IP range"}
		}
	}
	return nil
}

func hostnameBlocked(host string) bool {
	lower := strings.ToLower(host)
	for _, pattern := range blockedDomainPatterns {
		if strings.HasPrefix(pattern, ".") {
			if strings.HasSuffix(lower, pattern) || lower == pattern[1:] {
				return true
			}
		} else if strings.Contains(lower, pattern) {
			return true
		}
	}
	if ip := net.ParseIP(lower); ip != nil {
		return ipBlocked(ip)
	}
	return false
}

func ipBlocked(ip net.IP) bool {
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

func extractTitle(rawHTML string) string {
	m := titleRe.FindStringSubmatch(rawHTML)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(m[1]))
}

var excessNewlines = regexp.MustCompile(`\n{3,}`)

func clampContent(text string) string {
	text = excessNewlines.ReplaceAllString(strings.TrimSpace(text), "\n\n")
	if len(text) > maxContentLength {
		text = text[:maxContentLength] + "\n\n[Content truncated...]"
	}
	return text
}
