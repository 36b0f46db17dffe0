// Package idgen provides the snowflake node used for every primary key.
package idgen

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// NodeParams allows the binary to pick a node id per process.
type NodeParams struct {
	fx.In

	NodeID int64 `name:"snowflake_node_id" optional:"true"`
}

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

func NewNode(p NodeParams) (*snowflake.Node, error) {
	nodeID := p.NodeID
	if nodeID == 0 {
		nodeID = 1
	}
	return snowflake.NewNode(nodeID)
}
