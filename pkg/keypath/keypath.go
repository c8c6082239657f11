// Package keypath defines the structural locator used to address a value
// inside a configuration artifact. A Path is resolvable within exactly one
// artifact format; the grammar of its segments is owned by that format's
// reconciler (plist dict key, JSON pointer, manifest attribute address).
package keypath

import "strings"

// Path addresses a value inside an artifact.
type Path string

// Segments splits the path on "/" separators. JSON-pointer style escapes are
// honored so keys containing "/" or "~" remain addressable ("~1" -> "/",
// "~0" -> "~").
func (p Path) Segments() []string {
	raw := strings.Split(strings.TrimPrefix(string(p), "/"), "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ReplaceAll(s, "~1", "/")
		s = strings.ReplaceAll(s, "~0", "~")
		segs[i] = s
	}
	return segs
}

// Attribute splits an XML-style path of the form "element/path@attr" into its
// element part and attribute name. ok is false when the path carries no
// attribute marker.
func (p Path) Attribute() (element Path, attr string, ok bool) {
	s := string(p)
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return p, "", false
	}
	return Path(s[:i]), s[i+1:], true
}

func (p Path) String() string {
	return string(p)
}

// Join builds a Path from raw segments, applying JSON-pointer style escapes
// so the result round-trips through Segments.
func Join(segs []string) Path {
	escaped := make([]string, len(segs))
	for i, s := range segs {
		s = strings.ReplaceAll(s, "~", "~0")
		s = strings.ReplaceAll(s, "/", "~1")
		escaped[i] = s
	}
	return Path(strings.Join(escaped, "/"))
}
