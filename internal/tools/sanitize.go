package tools

// MaxNameLength is the longest tool name vendors accept
const MaxNameLength = 64

// Sanitize maps a tool name onto [A-Za-z0-9_-]{0,64}. Every other rune
// becomes an underscore. The mapping is idempotent.
func Sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if len(out) == MaxNameLength {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Match finds the descriptor whose sanitized id or name equals the sanitized name
func Match(name string, descriptors []Descriptor) (Descriptor, bool) {
	want := Sanitize(name)
	if want == "" {
		return Descriptor{}, false
	}
	for _, d := range descriptors {
		if d.ID != "" && Sanitize(d.ID) == want {
			return d, true
		}
		if d.Name != "" && Sanitize(d.Name) == want {
			return d, true
		}
	}
	return Descriptor{}, false
}
