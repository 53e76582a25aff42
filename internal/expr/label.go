package expr

import "regexp"

var labelRef = regexp.MustCompile(`\$\{([A-Za-z][A-Za-z0-9_]*)\}`)

// LabelRefs returns the names referenced as ${name} in a label, in order of
// first appearance.
func LabelRefs(label string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range labelRef.FindAllStringSubmatch(label, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			refs = append(refs, m[1])
		}
	}
	return refs
}

// Interpolate replaces every ${name} in label with lookup(name).
func Interpolate(label string, lookup func(name string) string) string {
	if len(label) < 4 {
		return label
	}
	return labelRef.ReplaceAllStringFunc(label, func(m string) string {
		return lookup(labelRef.FindStringSubmatch(m)[1])
	})
}
