package access

import (
	"fmt"
	"strings"
)

var knownMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "OPTIONS": true, "CONNECT": true, "TRACE": true,
	AnyMethod: true,
}

// ParseRules reads rules of the form "METHOD PATTERN CLASS" separated by ';'
// or newlines, e.g. "GET /api/usuario/** public; * /api/admin/** authenticated".
// An omitted CLASS means public.
func ParseRules(raw string) ([]RoutePattern, error) {
	var rules []RoutePattern

	entries := strings.FieldsFunc(raw, func(r rune) bool { return r == ';' || r == '\n' })
	for i, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("route rule %d %q: want METHOD PATTERN [public|authenticated]", i+1, strings.TrimSpace(entry))
		}

		rule, err := newRule(fields)
		if err != nil {
			return nil, fmt.Errorf("route rule %d %q: %w", i+1, strings.TrimSpace(entry), err)
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

func newRule(fields []string) (RoutePattern, error) {
	method := strings.ToUpper(fields[0])
	if !knownMethods[method] {
		return RoutePattern{}, fmt.Errorf("unknown method %q", fields[0])
	}

	pattern := fields[1]
	if err := validatePattern(pattern); err != nil {
		return RoutePattern{}, err
	}

	class := Public
	if len(fields) == 3 {
		switch strings.ToLower(fields[2]) {
		case "public", "permit", "permitall":
			class = Public
		case "authenticated", "auth":
			class = Authenticated
		default:
			return RoutePattern{}, fmt.Errorf("unknown access class %q", fields[2])
		}
	}

	return RoutePattern{Method: method, Pattern: pattern, Access: class}, nil
}

func validatePattern(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must start with /", pattern)
	}

	literal := strings.TrimSuffix(strings.TrimSuffix(pattern, "/**"), "/*")
	if strings.Contains(literal, "*") {
		return fmt.Errorf("pattern %q: wildcards are only allowed as the last segment", pattern)
	}
	if literal != "" && literal != "/" && CleanPath(literal) != literal {
		return fmt.Errorf("pattern %q is not a clean path", pattern)
	}
	return nil
}
