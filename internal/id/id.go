// Package id issues "{kind}_{unique}" identifiers backed by Snowflake IDs.
package id

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Entity kinds used as ID prefixes.
const (
	KindRepository   = "repo"
	KindPullRequest  = "pr"
	KindSnapshot     = "snap"
	KindSnapshotFile = "sfile"
	KindJob          = "job"
	KindJobEvent     = "evt"
	KindSuggestion   = "sug"
	KindPublishRun   = "pub"
	KindComment      = "cmt"
	KindFeedback     = "fb"
	KindExternal     = "ext"
)

// Generator issues unique, time-ordered IDs. It is safe for concurrent use.
type Generator struct {
	node *snowflake.Node
}

// NewGenerator creates a Generator for the given Snowflake node ID (0-1023).
// Instances sharing a store must use distinct node IDs.
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// New returns a fresh ID of the form "{kind}_{snowflake}".
func (g *Generator) New(kind string) string {
	return kind + "_" + g.node.Generate().String()
}
