package capture

import (
	"regexp"
	"strconv"
	"strings"
)

// clickHandlerAttrs are inline handler attributes that mark a node as
// click-reactive even without a role.
var clickHandlerAttrs = map[string]bool{
	"onclick":      true,
	"onmousedown":  true,
	"onmouseup":    true,
	"ontouchstart": true,
	"ontouchend":   true,
}

// testIDAttrs are the common explicit test identifiers. Their presence is a
// strong hint the team considers the element interactable.
var testIDAttrs = map[string]bool{
	"data-testid":  true,
	"data-test-id": true,
	"data-test":    true,
	"data-cy":      true,
	"data-qa":      true,
}

var pointerCursorStyle = regexp.MustCompile(`(?i)cursor\s*:\s*pointer`)

// computeFlags derives the heuristic signals from raw attributes only.
// Computed-style cursor is folded in later when geometry attaches.
func computeFlags(attrs []Attr) Flags {
	var f Flags
	for _, a := range attrs {
		name := strings.ToLower(a.Name)
		switch {
		case clickHandlerAttrs[name]:
			f.ClickHandler = true
		case testIDAttrs[name]:
			f.TestID = true
		case name == "style" && pointerCursorStyle.MatchString(a.Value):
			f.PointerCursor = true
		case name == "role" && strings.TrimSpace(a.Value) != "":
			f.RoleAttr = true
		case name == "tabindex":
			if idx, err := strconv.Atoi(strings.TrimSpace(a.Value)); err == nil && idx >= 0 {
				f.TabStop = true
			}
		}
	}
	return f
}

// genericRoles are accessibility roles that carry no interaction meaning.
var genericRoles = map[string]bool{
	"":              true,
	"generic":       true,
	"none":          true,
	"presentation":  true,
	"statictext":    true,
	"inlinetextbox": true,
}

// GenericRole reports whether a role carries no interaction meaning. The
// empty role is generic.
func GenericRole(role string) bool {
	return genericRoles[strings.ToLower(role)]
}

// deriveTier classifies a node: semantic for a non-generic projected role,
// non-semantic for heuristic-only signal, structural otherwise.
func deriveTier(ax *AX, flags Flags) Tier {
	if ax != nil && !genericRoles[strings.ToLower(ax.Role)] {
		return TierSemantic
	}
	if flags.Any() {
		return TierNonSemantic
	}
	return TierStructural
}
