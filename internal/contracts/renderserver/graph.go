// Package renderserver holds the wire types exchanged with the render server.
//
// The job graph is treated as an opaque document. The only mutation the
// bridge ever performs on it is Graph.Apply.
package renderserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Graph is a job graph: node id -> node definition.
type Graph map[string]any

// InputPatch writes Value into graph[NodeID].inputs[Field].
type InputPatch struct {
	NodeID NodeID
	Field  string
	Value  any
}

// Apply performs p on g. It reports false, leaving g untouched, when the node
// is missing or the node or its inputs are not objects.
func (g Graph) Apply(p InputPatch) bool {
	if p.NodeID == "" || p.Field == "" {
		return false
	}
	node, ok := g[string(p.NodeID)].(map[string]any)
	if !ok {
		return false
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		return false
	}
	inputs[p.Field] = p.Value
	return true
}

// Clone returns a deep copy of g.
func (g Graph) Clone() (Graph, error) {
	if g == nil {
		return nil, nil
	}
	raw, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	var out Graph
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseGraph decodes raw into a Graph. Anything other than a JSON object
// (including null) is rejected.
func ParseGraph(raw json.RawMessage) (Graph, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("must be an object")
	}
	var g Graph
	if err := json.Unmarshal(trimmed, &g); err != nil {
		return nil, fmt.Errorf("must be an object: %w", err)
	}
	return g, nil
}

// NodeID is a graph node id. Callers send it as either a JSON string or number.
type NodeID string

// UnmarshalJSON accepts "12", 12 and null.
func (n *NodeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*n = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = NodeID(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("node id must be a string or number: %w", err)
	}
	if i, err := num.Int64(); err == nil {
		*n = NodeID(strconv.FormatInt(i, 10))
		return nil
	}
	*n = NodeID(num.String())
	return nil
}
