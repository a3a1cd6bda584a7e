package auth

import (
	"net/http"
	"strings"
)

// Requirement is the identity state a route demands.
type Requirement int

const (
	Anonymous Requirement = iota
	Authenticated
)

func (r Requirement) String() string {
	if r == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Rule maps a method and path pattern to a requirement. An empty Method
// matches every method. Patterns are slash separated; "*" matches one
// segment and a trailing "**" matches the prefix and anything below it.
type Rule struct {
	Method      string
	Pattern     string
	Requirement Requirement
}

// Policy is an ordered access table. The first matching rule wins and
// Fallback applies when nothing matches. When the policy is not enforced
// every request is allowed regardless of the table.
type Policy struct {
	enforce  bool
	rules    []Rule
	fallback Requirement
}

func NewPolicy(enforce bool, fallback Requirement, rules ...Rule) *Policy {
	return &Policy{
		enforce:  enforce,
		rules:    append([]Rule(nil), rules...),
		fallback: fallback,
	}
}

// DefaultRules is the intended access table for the API.
func DefaultRules() []Rule {
	return []Rule{
		{Method: http.MethodOptions, Pattern: "/**", Requirement: Anonymous},
		{Pattern: "/healthz", Requirement: Anonymous},
		{Pattern: "/auth/**", Requirement: Anonymous},
		{Pattern: "/debug/public", Requirement: Anonymous},
		{Pattern: "/debug/auth", Requirement: Authenticated},
		{Pattern: "/environment/**", Requirement: Authenticated},
		{Pattern: "/tasks/**", Requirement: Authenticated},
		{Pattern: "/attachments/**", Requirement: Authenticated},
	}
}

// DefaultPolicy builds the API policy with enforcement switched on or off.
func DefaultPolicy(enforce bool) *Policy {
	return NewPolicy(enforce, Authenticated, DefaultRules()...)
}

// Enforced reports whether the policy rejects requests.
func (p *Policy) Enforced() bool {
	return p.enforce
}

// Required returns the requirement configured for method and path,
// independent of enforcement.
func (p *Policy) Required(method, path string) Requirement {
	for _, rule := range p.rules {
		if rule.Method != "" && !strings.EqualFold(rule.Method, method) {
			continue
		}
		if matchPattern(rule.Pattern, path) {
			return rule.Requirement
		}
	}
	return p.fallback
}

// Allows reports whether a request in the given identity state may proceed.
func (p *Policy) Allows(method, path string, authenticated bool) bool {
	if !p.enforce {
		return true
	}
	return authenticated || p.Required(method, path) == Anonymous
}

func matchPattern(pattern, path string) bool {
	pp := splitPath(pattern)
	sp := splitPath(path)
	for i, seg := range pp {
		if seg == "**" && i == len(pp)-1 {
			return true
		}
		if i >= len(sp) {
			return false
		}
		if seg != "*" && seg != sp[i] {
			return false
		}
	}
	return len(pp) == len(sp)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
