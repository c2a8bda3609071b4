package agent

import "github.com/anthropics/anthropic-sdk-go"

// toolDefinitions returns the tool schemas offered to the model. They
// map one-to-one onto toolExecutor handlers.
func toolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        "read_file",
				Description: anthropic.String("Read a file. Paths are relative to the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path of the file to read",
						},
					},
					Required: []string{"path"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "write_file",
				Description: anthropic.String("Write a file, creating parent directories as needed."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path of the file to write",
						},
						"content": map[string]interface{}{
							"type":        "string",
							"description": "Full file content",
						},
					},
					Required: []string{"path", "content"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "edit_file",
				Description: anthropic.String("Replace text in a file. old_text must be unique unless replace_all is set."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Path of the file to edit",
						},
						"old_text": map[string]interface{}{
							"type":        "string",
							"description": "Exact text to replace",
						},
						"new_text": map[string]interface{}{
							"type":        "string",
							"description": "Replacement text",
						},
						"replace_all": map[string]interface{}{
							"type":        "boolean",
							"description": "Replace every occurrence",
						},
					},
					Required: []string{"path", "old_text", "new_text"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "run_command",
				Description: anthropic.String("Run a shell command in the working directory."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "Command to run",
						},
						"timeout_ms": map[string]interface{}{
							"type":        "integer",
							"description": "Timeout in milliseconds (default 120000)",
						},
					},
					Required: []string{"command"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        "list_dir",
				Description: anthropic.String("List directory entries."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"path": map[string]interface{}{
							"type":        "string",
							"description": "Directory to list (default working directory)",
						},
					},
				},
			},
		},
	}
}
