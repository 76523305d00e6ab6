package server

import (
	"github.com/eternalApril/mixedds/internal/resp"
)

// cmdContext carries what a server command needs: its arguments and the engine that owns the shards
type cmdContext struct {
	args   []resp.Value
	engine *Engine
}

// command is a RESP command answered by the server itself rather than by a shard
type command interface {
	execute(ctx *cmdContext) resp.Value
}

type commandFunc func(ctx *cmdContext) resp.Value

func (c commandFunc) execute(ctx *cmdContext) resp.Value {
	return c(ctx)
}
