package middleware

import "strings"

// PathSet matches request paths against an allow-list. An entry matches the
// exact path and every path below it; the entry "/" matches only the root.
type PathSet struct {
	root     bool
	prefixes []string
}

// NewPathSet builds a PathSet from paths. Trailing slashes are ignored.
func NewPathSet(paths ...string) PathSet {
	var s PathSet
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "/" {
			s.root = true
			continue
		}
		s.prefixes = append(s.prefixes, strings.TrimRight(p, "/"))
	}
	return s
}

// Match reports whether path is covered by the set.
func (s PathSet) Match(path string) bool {
	if path == "" {
		path = "/"
	}
	if path == "/" {
		return s.root
	}
	for _, p := range s.prefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
