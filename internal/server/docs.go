package server

import (
	"sort"
	"strings"

	"github.com/eternalApril/mixedds/internal/resp"
)

type commandMetadata struct {
	arity    int      // Arity includes the command name itself
	flags    []string // read, write, fast, denyoom, etc
	firstKey int      // 1-based index of the first key
	lastKey  int      // 1-based index of the last key, negative counts from the end
	step     int      // Step count for finding keys
}

var (
	commandRegistry = map[string]commandMetadata{
		"PING":     {-1, []string{"fast", "stale"}, 0, 0, 0},
		"COMMAND":  {-1, []string{"random", "loading", "stale"}, 0, 0, 0},
		"FLUSHALL": {-1, []string{"write"}, 0, 0, 0},
		"DBSIZE":   {1, []string{"readonly", "fast"}, 0, 0, 0},
		"INFO":     {-1, []string{"random", "loading", "stale"}, 0, 0, 0},
		"GET":      {2, []string{"readonly", "fast"}, 1, 1, 1},
		"SET":      {-3, []string{"write", "denyoom"}, 1, 1, 1},
		"DEL":      {-2, []string{"write"}, 1, -1, 1},
		"EXISTS":   {-2, []string{"readonly", "fast"}, 1, -1, 1},
		"MGET":     {-2, []string{"readonly", "fast"}, 1, -1, 1},
		"INCR":     {2, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"DECR":     {2, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"INCRBY":   {3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"DECRBY":   {3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"LPUSH":    {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"RPUSH":    {-3, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"LPOP":     {2, []string{"write", "fast"}, 1, 1, 1},
		"RPOP":     {2, []string{"write", "fast"}, 1, 1, 1},
		"HSET":     {-4, []string{"write", "denyoom", "fast"}, 1, 1, 1},
		"HGET":     {3, []string{"readonly", "fast"}, 1, 1, 1},
		"TTL":      {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PTTL":     {2, []string{"readonly", "fast"}, 1, 1, 1},
		"PERSIST":  {2, []string{"write", "fast"}, 1, 1, 1},
		"EXPIRE":   {3, []string{"write", "fast"}, 1, 1, 1},
	}
)

// commandDoc stores a description for the command
type commandDoc struct {
	summary    string
	complexity string
	group      string
	since      string
}

// commandDocsRegistry documentation registry
var commandDocsRegistry = map[string]commandDoc{
	"PING":     {"Ping the server.", "O(1)", "connection", "1.0.0"},
	"COMMAND":  {"Get array of command details.", "O(N) where N is the number of commands to look up.", "server", "1.0.0"},
	"FLUSHALL": {"Remove all keys from all shards.", "O(N) where N is the total number of keys.", "server", "1.0.0"},
	"DBSIZE":   {"Return the number of keys held.", "O(S) where S is the number of shards.", "server", "1.0.0"},
	"INFO":     {"Get information and statistics about the server.", "O(S) where S is the number of shards.", "server", "1.0.0"},
	"GET":      {"Get the value of a key.", "O(1)", "string", "1.0.0"},
	"SET":      {"Set the string value of a key.", "O(log N)", "string", "1.0.0"},
	"DEL":      {"Delete a key.", "O(N) where N is the number of keys that will be removed.", "generic", "1.0.0"},
	"EXISTS":   {"Determine how many of the given keys exist.", "O(N) where N is the number of keys to check.", "generic", "1.0.0"},
	"MGET":     {"Get the values of all the given keys.", "O(N) where N is the number of keys to retrieve.", "string", "1.0.0"},
	"INCR":     {"Increment the integer value of a key by one.", "O(1)", "string", "1.0.0"},
	"DECR":     {"Decrement the integer value of a key by one.", "O(1)", "string", "1.0.0"},
	"INCRBY":   {"Increment the integer value of a key by the given amount.", "O(1)", "string", "1.0.0"},
	"DECRBY":   {"Decrement the integer value of a key by the given number.", "O(1)", "string", "1.0.0"},
	"LPUSH":    {"Prepend one or multiple elements to a list.", "O(N) where N is the number of elements pushed.", "list", "1.0.0"},
	"RPUSH":    {"Append one or multiple elements to a list.", "O(N) where N is the number of elements pushed.", "list", "1.0.0"},
	"LPOP":     {"Remove and get the first element in a list.", "O(1)", "list", "1.0.0"},
	"RPOP":     {"Remove and get the last element in a list.", "O(1)", "list", "1.0.0"},
	"HSET":     {"Set the value of one or more fields in a hash.", "O(N) where N is the number of fields being set.", "hash", "1.0.0"},
	"HGET":     {"Get the value of a hash field.", "O(1)", "hash", "1.0.0"},
	"TTL":      {"Get the time to live for a key in seconds.", "O(1)", "generic", "1.0.0"},
	"PTTL":     {"Get the time to live for a key in milliseconds.", "O(1)", "generic", "1.0.0"},
	"PERSIST":  {"Remove the expiration from a key.", "O(log N)", "generic", "1.0.0"},
	"EXPIRE":   {"Set a key's time to live in seconds.", "O(log N)", "generic", "1.0.0"},
}

func makeFlagsArray(flags []string) resp.Value {
	vals := make([]resp.Value, len(flags))
	for i, f := range flags {
		vals[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray(vals)
}

func makeInfoCmdArray(name string) []resp.Value {
	meta := commandRegistry[name]
	return []resp.Value{
		resp.MakeBulkString(strings.ToLower(name)),
		resp.MakeInteger(int64(meta.arity)),
		makeFlagsArray(meta.flags),
		resp.MakeInteger(int64(meta.firstKey)),
		resp.MakeInteger(int64(meta.lastKey)),
		resp.MakeInteger(int64(meta.step)),
	}
}

// commandNames returns the registered names in a stable order
func commandNames() []string {
	names := make([]string, 0, len(commandRegistry))
	for name := range commandRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func getAllCommands() resp.Value {
	cmdArray := make([]resp.Value, 0, len(commandRegistry))
	for _, name := range commandNames() {
		cmdArray = append(cmdArray, resp.MakeArray(makeInfoCmdArray(name)))
	}
	return resp.MakeArray(cmdArray)
}

// getCommandsInfo returns details for the requested commands, null for unknown ones
func getCommandsInfo(args []resp.Value) resp.Value {
	out := make([]resp.Value, len(args))
	for i, arg := range args {
		name := strings.ToUpper(string(arg.String))
		if _, ok := commandRegistry[name]; !ok {
			out[i] = resp.MakeNilArray()
			continue
		}
		out[i] = resp.MakeArray(makeInfoCmdArray(name))
	}
	return resp.MakeArray(out)
}

// getCommandsDocs returns documentation for specified commands or all commands
// Format: [Name, [Summary, val, Since, val...], Name, [...]]
func getCommandsDocs(args []resp.Value) resp.Value {
	var targets []string

	if len(args) == 0 {
		targets = commandNames()
	} else {
		targets = make([]string, 0, len(args))
		for _, arg := range args {
			targets = append(targets, strings.ToUpper(string(arg.String)))
		}
	}

	result := make([]resp.Value, 0, len(targets)*2)

	for _, name := range targets {
		doc, ok := commandDocsRegistry[name]
		if !ok {
			continue
		}

		result = append(result, resp.MakeBulkString(strings.ToLower(name)))

		props := []resp.Value{
			resp.MakeBulkString("summary"),
			resp.MakeBulkString(doc.summary),
			resp.MakeBulkString("since"),
			resp.MakeBulkString(doc.since),
			resp.MakeBulkString("group"),
			resp.MakeBulkString(doc.group),
			resp.MakeBulkString("complexity"),
			resp.MakeBulkString(doc.complexity),
		}

		result = append(result, resp.MakeArray(props))
	}

	return resp.MakeArray(result)
}
