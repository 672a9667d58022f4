package fetch

import (
	"net/url"
	"strings"

	"github.com/TerriaJS/terriajs-sub017/internal/config"
)

// ProxyURL rewrites a remote URL through the configured CORS proxy. The
// result is base + "_" + cacheDuration + "/" + rawURL, or base + rawURL
// without a duration. URLs are left alone when no proxy is configured, when
// they are relative, data: or already proxied, and when their host is CORS
// enabled and forceProxy is false.
func ProxyURL(cfg config.ProxyConfig, rawURL, cacheDuration string, forceProxy bool) string {
	base := cfg.BaseURL
	if base == "" || rawURL == "" {
		return rawURL
	}
	if strings.HasPrefix(rawURL, base) || strings.HasPrefix(rawURL, "data:") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return rawURL
	}
	if !forceProxy && corsEnabled(cfg.CorsDomains, u.Hostname()) {
		return rawURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if cacheDuration != "" {
		return base + "_" + cacheDuration + "/" + rawURL
	}
	return base + rawURL
}

// corsEnabled matches host against domains; an entry matches itself and any
// subdomain.
func corsEnabled(domains []string, host string) bool {
	host = strings.ToLower(host)
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
