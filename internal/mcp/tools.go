package mcp

// ToolDefinition models MCP tool metadata.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// toolDefinitions is the static registry, returned verbatim on tools/list.
// This is the verbose agentfund_* naming scheme; the historical short
// un-prefixed scheme is not served.
func toolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "agentfund_get_project",
			Description: "Fetch one escrow project and render its full report (funder, agent, amounts, milestone position, status).",
			InputSchema: jsonSchema(map[string]any{
				"project_id": propString("Project id as a decimal string (e.g. \"12\")."),
			}, []string{"project_id"}),
		},
		{
			Name:        "agentfund_get_stats",
			Description: "Show the escrow contract identity, chain, platform fee, and total project count.",
			InputSchema: jsonSchema(map[string]any{}, []string{}),
		},
		{
			Name:        "agentfund_find_my_projects",
			Description: "Scan recent projects for ones funding the given agent address (bounded by the configured scan limit).",
			InputSchema: jsonSchema(map[string]any{
				"agent_address": propString("Agent (fund recipient) address, 0x-prefixed hex."),
			}, []string{"agent_address"}),
		},
		{
			Name:        "agentfund_create_fundraise",
			Description: "Encode an unsigned createProject transaction for the given agent and milestone amounts. Never signs or broadcasts.",
			InputSchema: jsonSchema(map[string]any{
				"agent_address":     propString("Agent (fund recipient) address, 0x-prefixed hex."),
				"milestone_amounts": propStringArray("Ordered milestone amounts in ETH as decimal strings (e.g. [\"0.01\",\"0.02\"])."),
				"description":       propString("Optional free-text description of the work."),
			}, []string{"agent_address", "milestone_amounts"}),
		},
		{
			Name:        "agentfund_check_milestone_status",
			Description: "Summarize a project's milestone progress, branching on Active / Completed / Cancelled status.",
			InputSchema: jsonSchema(map[string]any{
				"project_id": propString("Project id as a decimal string."),
			}, []string{"project_id"}),
		},
		{
			Name:        "agentfund_generate_release_tx",
			Description: "Encode an unsigned releaseMilestone transaction for the funder to sign. Fails if the project is not Active.",
			InputSchema: jsonSchema(map[string]any{
				"project_id": propString("Project id as a decimal string."),
			}, []string{"project_id"}),
		},
		{
			Name:        "agentfund_generate_cancel_tx",
			Description: "Encode an unsigned cancelProject transaction for the funder to sign.",
			InputSchema: jsonSchema(map[string]any{
				"project_id": propString("Project id as a decimal string."),
			}, []string{"project_id"}),
		},
	}
}

func jsonSchema(properties map[string]any, required []string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func propString(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func propStringArray(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}
