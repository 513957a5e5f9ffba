package capture

import "strings"

// fingerprintDepth bounds the framework scan. Framework markers live on the
// root or its first few wrappers; a shallow pass is enough.
const fingerprintDepth = 10

// frameworkMarkers maps attribute substrings to framework identifiers.
// Checked against attribute names and a few well-known id values.
var frameworkMarkers = []struct {
	substring string
	framework string
}{
	{"data-reactroot", "react"},
	{"data-reactid", "react"},
	{"data-react", "react"},
	{"ng-version", "angular"},
	{"ng-app", "angular"},
	{"data-v-", "vue"},
	{"data-vue", "vue"},
	{"data-svelte", "svelte"},
	{"data-ember", "ember"},
}

// wellKnownIDs are root container ids planted by meta-frameworks.
var wellKnownIDs = map[string]string{
	"__next": "nextjs",
	"__nuxt": "nuxt",
	"root":   "", // too generic on its own
}

// fingerprint runs a shallow scan matching known attribute substrings.
// Purely informational; an empty result means no framework recognised.
func fingerprint(root *Node) string {
	if root == nil {
		return ""
	}

	found := ""
	root.Walk(func(n *Node, depth int) bool {
		if depth > fingerprintDepth || found != "" {
			return false
		}
		for _, a := range n.Attrs {
			for _, m := range frameworkMarkers {
				if strings.Contains(a.Name, m.substring) {
					found = m.framework
					return false
				}
			}
			if a.Name == "id" {
				if fw, ok := wellKnownIDs[a.Value]; ok && fw != "" {
					found = fw
					return false
				}
			}
		}
		return true
	})
	return found
}
