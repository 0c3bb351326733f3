package triggers

import (
	"fmt"
	"strings"
)

// pattern is a document path template such as users/{userId}/feed/{postId}.
type pattern struct {
	raw  string
	segs []string
}

func compilePattern(raw string) (pattern, error) {
	segs := strings.Split(raw, "/")
	if len(segs) == 0 || len(segs)%2 != 0 {
		return pattern{}, fmt.Errorf("pattern %q must name a document", raw)
	}
	seen := map[string]bool{}
	for i, s := range segs {
		if s == "" {
			return pattern{}, fmt.Errorf("pattern %q has an empty segment", raw)
		}
		name, ok := paramName(s)
		if !ok {
			continue
		}
		if i%2 == 0 {
			return pattern{}, fmt.Errorf("pattern %q: collection segment %q cannot be a parameter", raw, s)
		}
		if name == "" || seen[name] {
			return pattern{}, fmt.Errorf("pattern %q: bad parameter %q", raw, s)
		}
		seen[name] = true
	}
	return pattern{raw: raw, segs: segs}, nil
}

func paramName(seg string) (string, bool) {
	if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// match extracts the parameters of path, which must have exactly as many
// segments as the pattern.
func (p pattern) match(path string) (map[string]string, bool) {
	segs := strings.Split(path, "/")
	if len(segs) != len(p.segs) {
		return nil, false
	}
	params := map[string]string{}
	for i, s := range p.segs {
		if name, ok := paramName(s); ok {
			if segs[i] == "" {
				return nil, false
			}
			params[name] = segs[i]
			continue
		}
		if s != segs[i] {
			return nil, false
		}
	}
	return params, true
}

func (p pattern) String() string { return p.raw }
