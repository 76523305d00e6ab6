package server

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/resp"
)

func ping(ctx *cmdContext) resp.Value {
	switch len(ctx.args) {
	case 0:
		return resp.MakeSimpleString("PONG")
	case 1:
		return resp.MakeBulkBytes(ctx.args[0].String)
	}
	return resp.MakeErrorWrongNumberOfArguments("ping")
}

// cmd answers COMMAND, COMMAND COUNT, COMMAND INFO and COMMAND DOCS
func cmd(ctx *cmdContext) resp.Value {
	if len(ctx.args) == 0 {
		return getAllCommands()
	}

	switch strings.ToUpper(string(ctx.args[0].String)) {
	case "COUNT":
		return resp.MakeInteger(int64(len(commandRegistry)))
	case "INFO":
		return getCommandsInfo(ctx.args[1:])
	case "DOCS":
		return getCommandsDocs(ctx.args[1:])
	}
	return resp.MakeError(fmt.Sprintf("ERR unknown subcommand '%s'", ctx.args[0].String))
}

// flushall clears every shard. ASYNC and SYNC are accepted and behave the same
func flushall(ctx *cmdContext) resp.Value {
	if len(ctx.args) > 1 {
		return resp.MakeErrorWrongNumberOfArguments("flushall")
	}
	if len(ctx.args) == 1 {
		mode := strings.ToUpper(string(ctx.args[0].String))
		if mode != "ASYNC" && mode != "SYNC" {
			return resp.MakeError("ERR syntax error")
		}
	}

	if err := ctx.engine.pool.Clear(); err != nil {
		ctx.engine.logger.Error("flushall failed", zap.Error(err))
		return resp.MakeError("ERR " + err.Error())
	}
	return resp.MakeSimpleString("OK")
}

// dbsize counts the entries held, including expired ones the sweep has not reached yet
func dbsize(ctx *cmdContext) resp.Value {
	if len(ctx.args) != 0 {
		return resp.MakeErrorWrongNumberOfArguments("dbsize")
	}

	st, err := ctx.engine.stats()
	if err != nil {
		return resp.MakeError("ERR " + err.Error())
	}
	return resp.MakeInteger(int64(st.Keys))
}

// info renders the server and keyspace sections
func info(ctx *cmdContext) resp.Value {
	section := "all"
	if len(ctx.args) > 0 {
		section = strings.ToLower(string(ctx.args[0].String))
	}

	st, err := ctx.engine.stats()
	if err != nil {
		return resp.MakeError("ERR " + err.Error())
	}

	var b strings.Builder
	if section == "all" || section == "default" || section == "server" {
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "mixedds_version:%s\r\n", Version)
		fmt.Fprintf(&b, "shards:%d\r\n", ctx.engine.pool.Len())
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(ctx.engine.started)/time.Second))
		b.WriteString("\r\n")
	}
	if section == "all" || section == "default" || section == "keyspace" {
		var horizon int64
		if !st.Horizon.IsZero() {
			horizon = st.Horizon.UnixMilli()
		}
		fmt.Fprintf(&b, "# Keyspace\r\n")
		fmt.Fprintf(&b, "db0:keys=%d,expires=%d,index=%d,horizon_ms=%d\r\n",
			st.Keys, st.Expiring, st.IndexSize, horizon)
	}

	return resp.MakeBulkString(b.String())
}
