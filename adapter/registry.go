package adapter

import (
	"net"
	"net/url"
	"strings"
)

// All returns a fresh instance of every supported adapter.
func All() []Adapter {
	return []Adapter{NewClaude(), NewGemini(), NewPerplexity(), NewMeta()}
}

// ForHost returns a new adapter whose hostnames match host exactly or as a
// parent domain, or nil when the site is not supported.
func ForHost(host string) Adapter {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		return nil
	}
	for _, a := range All() {
		for _, h := range a.Config().Hostnames {
			if host == h || strings.HasSuffix(host, "."+h) {
				return a
			}
		}
	}
	return nil
}

// ForURL is ForHost over the host of rawURL.
func ForURL(rawURL string) Adapter {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return ForHost(u.Host)
}
