// Package access decides which gateway routes may be reached without a token.
//
// Rules are evaluated in order and the first match wins. A request that
// matches no rule requires authentication.
package access

import (
	"fmt"
	"path"
	"strings"
)

// Class is the access class of a route
type Class int

const (
	// Authenticated routes need a valid bearer token. It is the zero value so
	// an unset Class never opens a route.
	Authenticated Class = iota
	// Public routes are forwarded without looking at credentials
	Public
)

// String implements fmt.Stringer
func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	default:
		return "authenticated"
	}
}

// AnyMethod matches every HTTP method
const AnyMethod = "*"

// RoutePattern binds a method and a path pattern to an access class.
//
// Path patterns are literal paths, optionally ending in "/**" (the base path
// and anything below it) or "/*" (exactly one more segment).
type RoutePattern struct {
	Method  string
	Pattern string
	Access  Class
}

// String renders the rule in the same form ParseRules reads
func (p RoutePattern) String() string {
	return fmt.Sprintf("%s %s %s", p.Method, p.Pattern, p.Access)
}

func (p RoutePattern) matches(method, cleanPath string) bool {
	if p.Method != AnyMethod && !strings.EqualFold(p.Method, method) {
		return false
	}
	return matchPath(p.Pattern, cleanPath)
}

func matchPath(pattern, p string) bool {
	switch {
	case strings.HasSuffix(pattern, "/**"):
		base := strings.TrimSuffix(pattern, "/**")
		if base == "" {
			return true
		}
		return p == base || strings.HasPrefix(p, base+"/")
	case strings.HasSuffix(pattern, "/*"):
		base := strings.TrimSuffix(pattern, "/*")
		rest, ok := strings.CutPrefix(p, base+"/")
		return ok && rest != "" && !strings.Contains(rest, "/")
	default:
		return p == pattern
	}
}

// Classifier evaluates an ordered list of RoutePatterns
type Classifier struct {
	rules []RoutePattern
}

// NewClassifier creates a Classifier. The rules are copied.
func NewClassifier(rules []RoutePattern) *Classifier {
	return &Classifier{rules: append([]RoutePattern(nil), rules...)}
}

// Classify returns the class of the first rule matching method and path,
// or Authenticated when none does.
func (c *Classifier) Classify(method, requestPath string) Class {
	p := CleanPath(requestPath)
	for _, rule := range c.rules {
		if rule.matches(method, p) {
			return rule.Access
		}
	}
	return Authenticated
}

// Rules returns a copy of the configured rules
func (c *Classifier) Rules() []RoutePattern {
	return append([]RoutePattern(nil), c.rules...)
}

// CleanPath normalizes a request path so dot segments and repeated slashes
// cannot step around a pattern.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
