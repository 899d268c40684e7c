package dispatch

// resolveAlias looks up the tool (following a legacy-name redirect if
// needed) and injects the tool's DefaultAction into arguments["action"]
// when the caller didn't supply one. Returns the resolved spec, a
// migration note (empty unless a legacy name was used), and whether the
// tool name is known at all.
func resolveAlias(registry *Registry, toolName string, args map[string]any) (ToolSpec, string, bool) {
	spec, note, ok := registry.resolve(toolName)
	if !ok {
		return ToolSpec{}, "", false
	}
	if spec.DefaultAction != "" {
		if _, present := args["action"]; !present {
			args["action"] = spec.DefaultAction
		}
	}
	return spec, note, true
}
