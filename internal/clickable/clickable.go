// Package clickable classifies capture nodes as actionable or not, memoized
// by backend id for the lifetime of one snapshot.
package clickable

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/protocol"
)

// clickableRoles is the role whitelist for actionable elements.
var clickableRoles = map[string]bool{
	"button":    true,
	"link":      true,
	"checkbox":  true,
	"radio":     true,
	"menuitem":  true,
	"tab":       true,
	"switch":    true,
	"option":    true,
	"slider":    true,
	"searchbox": true,
	"textbox":   true,
	"combobox":  true,
}

// clickableTags is the tag whitelist.
var clickableTags = map[string]bool{
	"button":   true,
	"a":        true,
	"input":    true,
	"select":   true,
	"textarea": true,
	"label":    true,
}

const defaultCacheSize = 4096

// Classifier memoizes interactivity classification by backend id. Entries
// from a previous tree must never leak across rebuilds: call Reset on every
// snapshot rebuild.
type Classifier struct {
	memo *lru.Cache[protocol.BackendID, bool]
}

// New creates a Classifier. size <= 0 selects the default cache size.
func New(size int) *Classifier {
	if size <= 0 {
		size = defaultCacheSize
	}
	memo, _ := lru.New[protocol.BackendID, bool](size)
	return &Classifier{memo: memo}
}

// IsClickable reports whether the node is actionable. Memoized.
func (c *Classifier) IsClickable(n *capture.Node) bool {
	if n == nil || n.Kind != capture.KindElement {
		return false
	}
	if v, ok := c.memo.Get(n.BackendID); ok {
		return v
	}
	v := classify(n)
	c.memo.Add(n.BackendID, v)
	return v
}

// Reset purges all memoized entries. Must be called on snapshot rebuild.
func (c *Classifier) Reset() {
	c.memo.Purge()
}

func classify(n *capture.Node) bool {
	if clickableRoles[strings.ToLower(n.Role())] {
		return true
	}
	if clickableTags[n.Tag] {
		return true
	}
	// Heuristic-only interactivity: handler, tab stop, pointer cursor, or
	// an explicit test id on an otherwise unmarked element.
	f := n.Flags
	return f.ClickHandler || f.TabStop || f.PointerCursor || f.TestID
}
