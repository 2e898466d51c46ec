// Package proxy forwards requests that passed the access filter to the
// backend service owning their path prefix.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/upb/api-gateway/access"
	"github.com/upb/api-gateway/metrics"
	"github.com/upb/api-gateway/middleware"
	"github.com/upb/api-gateway/utils"
	"go.uber.org/zap"
)

// Identity headers set for upstreams. Anything under the X-Auth- prefix sent
// by a client is dropped first.
const (
	identityHeaderPrefix = "X-Auth-"
	HeaderSubject        = "X-Auth-Subject"
	HeaderAuthorities    = "X-Auth-Authorities"
	HeaderClientID       = "X-Auth-Client-Id"
)

// Route maps a path prefix to an upstream base URL
type Route struct {
	Prefix string
	Target *url.URL
}

// ParseRoutes reads "prefix=url" pairs separated by ';' or newlines,
// e.g. "/api/usuario=http://usuarios:8080;/api/security=http://oauth:9100".
func ParseRoutes(raw string) ([]Route, error) {
	var routes []Route
	seen := make(map[string]bool)

	entries := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' })
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		prefix, rawURL, ok := strings.Cut(entry, "=")
		prefix, rawURL = strings.TrimSpace(prefix), strings.TrimSpace(rawURL)
		if !ok || prefix == "" || rawURL == "" {
			return nil, fmt.Errorf("upstream %q: want prefix=url", entry)
		}
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("upstream %q: prefix must start with /", entry)
		}
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			prefix = "/"
		}
		if seen[prefix] {
			return nil, fmt.Errorf("upstream %q: duplicate prefix", entry)
		}

		target, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("upstream %q: %w", entry, err)
		}
		if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return nil, fmt.Errorf("upstream %q: url must be absolute http(s)", entry)
		}

		seen[prefix] = true
		routes = append(routes, Route{Prefix: prefix, Target: target})
	}

	return routes, nil
}

type upstream struct {
	Route
	proxy *httputil.ReverseProxy
}

// Router picks the upstream with the longest matching prefix
type Router struct {
	upstreams []*upstream
	logger    *zap.Logger
}

// NewRouter creates a Router for routes
func NewRouter(routes []Route, logger *zap.Logger) *Router {
	rt := &Router{logger: logger}
	for _, route := range routes {
		rt.upstreams = append(rt.upstreams, rt.newUpstream(route))
	}
	sort.SliceStable(rt.upstreams, func(i, j int) bool {
		return len(rt.upstreams[i].Prefix) > len(rt.upstreams[j].Prefix)
	})
	return rt
}

func (rt *Router) newUpstream(route Route) *upstream {
	target := route.Target
	prefix := route.Prefix

	return &upstream{
		Route: route,
		proxy: &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				setIdentityHeaders(pr.Out)
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				metrics.RecordUpstreamError(prefix)
				rt.logger.Error("upstream request failed",
					zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
					zap.String("route", prefix),
					zap.String("upstream", target.Host),
					zap.Error(err))
				_ = utils.WriteBadGateway(w, "")
			},
		},
	}
}

// ServeHTTP forwards r upstream using the same cleaned path the access
// filter classified, so upstreams never see a path the gateway did not judge.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cleaned := *r.URL
	cleaned.Path = access.CleanPath(r.URL.Path)
	cleaned.RawPath = ""
	r = r.WithContext(r.Context())
	r.URL = &cleaned

	if u := rt.match(cleaned.Path); u != nil {
		u.proxy.ServeHTTP(w, r)
		return
	}
	_ = utils.WriteNotFound(w, "endpoint not found")
}

// Count returns the number of configured upstreams
func (rt *Router) Count() int {
	return len(rt.upstreams)
}

// Label names the upstream owning p for request metrics. Paths no upstream
// claims share metrics.UnmatchedPath, so clients cannot mint new series.
func (rt *Router) Label(p string) string {
	if u := rt.match(access.CleanPath(p)); u != nil {
		return u.Prefix
	}
	return metrics.UnmatchedPath
}

func (rt *Router) match(p string) *upstream {
	for _, u := range rt.upstreams {
		if u.Prefix == "/" || p == u.Prefix || strings.HasPrefix(p, u.Prefix+"/") {
			return u
		}
	}
	return nil
}

// setIdentityHeaders drops client-supplied identity headers and, for
// authenticated requests, replaces them with the verified principal.
func setIdentityHeaders(out *http.Request) {
	for name := range out.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), identityHeaderPrefix) {
			out.Header.Del(name)
		}
	}

	principal := middleware.GetPrincipalFromContext(out.Context())
	if principal == nil {
		return
	}
	out.Header.Set(HeaderSubject, principal.Subject)
	if len(principal.Authorities) > 0 {
		out.Header.Set(HeaderAuthorities, strings.Join(principal.Authorities, ","))
	}
	if principal.ClientID != "" {
		out.Header.Set(HeaderClientID, principal.ClientID)
	}
}
