// Package policy implements the working-list rules that classify a
// foreground target as working or playing time.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one working-list entry as written in the working list file.
// Class is matched against the window class; when Names is present the
// window title must also match one of them, so an empty list matches no title.
type Rule struct {
	Class string   `yaml:"class" json:"class"`
	Names []string `yaml:"name,omitempty" json:"name,omitempty"`
}

// matcher is a case-insensitive search pattern.
type matcher struct {
	re *regexp.Regexp
}

// newMatcher compiles pattern as a case-insensitive regular expression.
// Patterns that do not compile are matched as literal substrings.
func newMatcher(pattern string) matcher {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		re = regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
	}
	return matcher{re: re}
}

func (m matcher) match(s string) bool {
	return m.re.MatchString(s)
}

type compiledRule struct {
	rule     Rule
	class    matcher
	hasNames bool
	names    []matcher
}

func compile(r Rule) (compiledRule, error) {
	if strings.TrimSpace(r.Class) == "" {
		return compiledRule{}, fmt.Errorf("rule has empty class pattern")
	}
	cr := compiledRule{rule: r, class: newMatcher(r.Class), hasNames: r.Names != nil}
	for _, n := range r.Names {
		cr.names = append(cr.names, newMatcher(n))
	}
	return cr, nil
}

// decide reports whether the rule claims the class, and if so whether the
// title counts as working.
func (cr compiledRule) decide(class, title string) (claimed, working bool) {
	if !cr.class.match(class) {
		return false, false
	}
	if !cr.hasNames {
		return true, true
	}
	for _, n := range cr.names {
		if n.match(title) {
			return true, true
		}
	}
	return true, false
}
