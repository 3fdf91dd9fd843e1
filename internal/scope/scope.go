// Package scope decides which discovered URLs belong to the exploration
// target and normalizes URLs for frontier deduplication.
package scope

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Rules configures scope checking. The default scope is the target's
// host plus its subdomains; everything else is out.
type Rules struct {
	// AllowedHosts extends the scope beyond the target host.
	AllowedHosts []string `json:"allowed_hosts" yaml:"allowed_hosts"`
	// ExcludePatterns removes matching URLs from scope even on allowed
	// hosts (logout links, destructive admin paths).
	ExcludePatterns []string `json:"exclude_patterns" yaml:"exclude_patterns"`
}

// Checker validates URLs against the target's scope.
type Checker struct {
	mu           sync.RWMutex
	targetHost   string
	allowedHosts map[string]struct{}
	excludes     []*regexp.Regexp
}

// NewChecker builds a checker rooted at targetURL.
func NewChecker(targetURL string, rules Rules) (*Checker, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target url: %w", err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("target url %q has no host", targetURL)
	}

	c := &Checker{
		targetHost:   strings.ToLower(parsed.Hostname()),
		allowedHosts: make(map[string]struct{}),
	}
	c.allowedHosts[c.targetHost] = struct{}{}
	for _, host := range rules.AllowedHosts {
		c.allowedHosts[strings.ToLower(host)] = struct{}{}
	}

	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern %q: %w", pattern, err)
		}
		c.excludes = append(c.excludes, re)
	}

	return c, nil
}

// InScope reports whether urlStr belongs to the exploration target.
func (c *Checker) InScope(urlStr string) bool {
	if !IsCrawlable(urlStr) {
		return false
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.hostAllowed(strings.ToLower(parsed.Hostname())) {
		return false
	}
	for _, re := range c.excludes {
		if re.MatchString(urlStr) {
			return false
		}
	}
	return true
}

// hostAllowed matches the host or any subdomain of an allowed host.
func (c *Checker) hostAllowed(host string) bool {
	if _, ok := c.allowedHosts[host]; ok {
		return true
	}
	for allowed := range c.allowedHosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// TargetHost returns the scope's root host.
func (c *Checker) TargetHost() string {
	return c.targetHost
}

// skipExtensions are asset paths that never yield an explorable page.
var skipExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".ico", ".svg", ".webp",
	".css", ".js", ".map", ".woff", ".woff2", ".ttf", ".eot",
	".pdf", ".zip", ".tar", ".gz",
	".mp3", ".mp4", ".wav", ".avi", ".mov",
}

// IsCrawlable reports whether a URL points at a navigable page: http(s),
// with a host, and not a static asset.
func IsCrawlable(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	if parsed.Host == "" {
		return false
	}

	path := strings.ToLower(parsed.Path)
	for _, ext := range skipExtensions {
		if strings.HasSuffix(path, ext) {
			return false
		}
	}
	return true
}

// Normalize canonicalizes a URL for deduplication: lowercased scheme and
// host, default ports stripped, fragment dropped, trailing slash trimmed,
// query parameters sorted.
func Normalize(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	parsed.Fragment = ""

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	if parsed.Path == "" {
		parsed.Path = "/"
	}

	if parsed.RawQuery != "" {
		parsed.RawQuery = parsed.Query().Encode()
	}

	return parsed.String(), nil
}

// Resolve resolves a possibly-relative href against a base URL.
func Resolve(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
