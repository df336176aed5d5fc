// Package pathref implements the workflow path grammar and the
// resolution of path references embedded in operation arguments.
//
// Grammar: /workflow ( /segment | [index] | .field )*
package pathref

import (
	"strconv"
	"strings"

	"github.com/lyzr/a2e/engine/errs"
)

// Segment is one step of a parsed path: a string key or an array index.
type Segment struct {
	Key   string
	Index int
	IsKey bool
}

// Path is a parsed workflow path.
type Path struct {
	raw      string
	segments []Segment
}

// Parse parses a path expression. Paths must be rooted at /workflow.
func Parse(raw string) (*Path, error) {
	if raw != "/workflow" && !strings.HasPrefix(raw, "/workflow/") && !strings.HasPrefix(raw, "/workflow[") && !strings.HasPrefix(raw, "/workflow.") {
		return nil, errs.Data(raw, "path must be rooted at /workflow")
	}

	p := &Path{raw: raw, segments: []Segment{{Key: "workflow", IsKey: true}}}
	rest := raw[len("/workflow"):]

	for len(rest) > 0 {
		switch rest[0] {
		case '/', '.':
			end := 1
			for end < len(rest) && isIdentChar(rest[end]) {
				end++
			}
			if end == 1 {
				return nil, errs.Data(raw, "empty path segment")
			}
			p.segments = append(p.segments, Segment{Key: rest[1:end], IsKey: true})
			rest = rest[end:]
		case '[':
			close := strings.IndexByte(rest, ']')
			if close < 0 {
				return nil, errs.Data(raw, "unterminated array index")
			}
			idx, err := strconv.Atoi(rest[1:close])
			if err != nil || idx < 0 {
				return nil, errs.Data(raw, "invalid array index %q", rest[1:close])
			}
			p.segments = append(p.segments, Segment{Index: idx})
			rest = rest[close+1:]
		default:
			return nil, errs.Data(raw, "unexpected character %q in path", rest[0])
		}
	}

	return p, nil
}

func isIdentChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// String returns the original path expression.
func (p *Path) String() string { return p.raw }

// Segments returns the parsed steps including the root segment.
func (p *Path) Segments() []Segment { return p.segments }

// GJSON renders the path in gjson dotted syntax ("workflow.users.1").
func (p *Path) GJSON() string {
	var b strings.Builder
	for i, s := range p.segments {
		if i > 0 {
			b.WriteByte('.')
		}
		if s.IsKey {
			b.WriteString(s.Key)
		} else {
			b.WriteString(strconv.Itoa(s.Index))
		}
	}
	return b.String()
}

// HasPrefix reports whether prefix covers the leading segments of p.
// A path is its own prefix.
func (p *Path) HasPrefix(prefix *Path) bool {
	if len(prefix.segments) > len(p.segments) {
		return false
	}
	for i, s := range prefix.segments {
		if s != p.segments[i] {
			return false
		}
	}
	return true
}

// IsPath reports whether raw parses as a workflow path. Used to decide
// whether a bare argument string is a reference.
func IsPath(raw string) bool {
	if !strings.HasPrefix(raw, "/workflow") {
		return false
	}
	_, err := Parse(raw)
	return err == nil
}

// ValidOutput ensures raw is a well-formed writable output path.
// Output paths must point strictly below the root.
func ValidOutput(raw string) error {
	p, err := Parse(raw)
	if err != nil {
		return err
	}
	if len(p.segments) < 2 {
		return errs.Data(raw, "output path must point below /workflow")
	}
	return nil
}
