package dispatch

import "encoding/json"

// unwrapKwargs flattens a single top-level "kwargs" key into the argument
// map proper. Some transports (notably older MCP clients) wrap every
// argument inside a "kwargs" dict or, worse, a JSON-encoded string of one;
// this undoes that one layer of indirection before alias resolution sees
// the arguments.
func unwrapKwargs(args map[string]any) map[string]any {
	if len(args) != 1 {
		return args
	}
	raw, ok := args["kwargs"]
	if !ok {
		return args
	}
	switch v := raw.(type) {
	case map[string]any:
		return v
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return decoded
		}
	}
	return args
}
