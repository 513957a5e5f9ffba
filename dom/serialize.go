package dom

import "encoding/json"

// MarshalDocument serialises a Document to JSON.
func MarshalDocument(d *Document) ([]byte, error) {
	return json.Marshal(d)
}

// UnmarshalDocument deserialises a Document from JSON.
func UnmarshalDocument(data []byte) (*Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// MarshalActionResult serialises an ActionResult to JSON.
func MarshalActionResult(r *ActionResult) ([]byte, error) {
	return json.Marshal(r)
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	stack := append([]*Node(nil), n.Children...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, cur.Children...)
	}
	return total
}

// Find returns the node with the given sequential id, or nil.
func (n *Node) Find(id int) *Node {
	if n == nil {
		return nil
	}
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.ID == id {
			return cur
		}
		stack = append(stack, cur.Children...)
	}
	return nil
}
