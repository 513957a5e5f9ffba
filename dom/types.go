// Package dom defines the structured types emitted by domsnap.
// These are the public API contract: any consumer (agent tool layers,
// MCP clients, custom planners) imports this package to receive compacted
// page structure and action results.
package dom

// Node is one element of the compacted tree handed to the agent. Every node
// carries a small sequential identifier assigned in document order; all
// other fields are optional and omitted when empty.
type Node struct {
	ID       int               `json:"id,omitempty"`
	Tag      string            `json:"tag"`
	Role     string            `json:"role,omitempty"`
	Text     string            `json:"text,omitempty"`
	Value    string            `json:"value,omitempty"`
	Link     string            `json:"link,omitempty"`   // href target for anchors
	Hint     string            `json:"hint,omitempty"`   // placeholder / title hint
	Input    string            `json:"input,omitempty"`  // input type attribute
	States   []string          `json:"states,omitempty"` // disabled, checked, expanded, required, selected
	Box      []int             `json:"box,omitempty"`    // [x, y, w, h] in integer pixels
	Attrs    map[string]string `json:"attrs,omitempty"`  // whitelisted extra attributes
	Children []*Node           `json:"children,omitempty"`
}

// PageContext identifies the page a document was captured from.
type PageContext struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Viewport [2]int `json:"viewport,omitempty"` // width, height
}

// Page pairs the compacted body with its context and optional metrics.
type Page struct {
	Context PageContext `json:"context"`
	Body    *Node       `json:"body"`
	Metrics *Metrics    `json:"metrics,omitempty"`
	// States holds the bucketed state representation when the optimizer
	// runs in bucket mode: state name → sequential node ids. Inline
	// per-node states are the default; at most one of the two forms is
	// populated per document.
	States map[string][]int `json:"states,omitempty"`
}

// Document is the outbound envelope for one serialized snapshot.
type Document struct {
	Page Page `json:"page"`
}

// StageMetric records one pipeline stage's work.
type StageMetric struct {
	Name      string `json:"name"`
	ElapsedUS int64  `json:"elapsed_us"`
	NodesIn   int    `json:"nodes_in"`
	NodesOut  int    `json:"nodes_out"`
}

// Metrics summarises a full pipeline run.
type Metrics struct {
	TotalNodes      int           `json:"total_nodes"`
	SerializedNodes int           `json:"serialized_nodes"`
	Stages          []StageMetric `json:"stages"`
	// CompactionScore blends character, node, and estimated-token
	// reduction: 0.4/0.4/0.2.
	CompactionScore float64 `json:"compaction_score"`
	Framework       string  `json:"framework,omitempty"`
}

// ActionType enumerates the protocol actions an agent can request.
type ActionType string

const (
	ActionClick    ActionType = "click"
	ActionInput    ActionType = "type" // insert text into a focused control
	ActionKeypress ActionType = "keypress"
	ActionScroll   ActionType = "scroll"
	ActionFocus    ActionType = "focus"
)

// Changes describes what an action was observed to alter.
type Changes struct {
	NavigationOccurred bool `json:"navigationOccurred"`
	DOMMutations       bool `json:"domMutations"`
	ScrollChanged      bool `json:"scrollChanged"`
	ValueChanged       bool `json:"valueChanged"`
}

// ActionResult is the structured outcome of one action execution. Present
// on both success and failure; Error is empty on success.
type ActionResult struct {
	Success    bool       `json:"success"`
	Duration   int64      `json:"duration"` // milliseconds
	ActionType ActionType `json:"actionType"`
	Timestamp  int64      `json:"timestamp"` // epoch milliseconds
	NodeID     int        `json:"nodeId"`
	Changes    Changes    `json:"changes"`
	Error      string     `json:"error,omitempty"`
}
