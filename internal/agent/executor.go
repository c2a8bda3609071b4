package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// toolExecutor runs tool calls inside one working directory and records
// every path the agent writes.
type toolExecutor struct {
	workDir  string
	modified map[string]bool
}

func newToolExecutor(workDir string) *toolExecutor {
	return &toolExecutor{workDir: workDir, modified: map[string]bool{}}
}

// toolResult is the outcome of one tool call.
type toolResult struct {
	Content string
	IsError bool
}

const maxToolOutput = 30000

func (e *toolExecutor) execute(ctx context.Context, name string, input json.RawMessage) toolResult {
	switch name {
	case "read_file":
		return e.readFile(input)
	case "write_file":
		return e.writeFile(input)
	case "edit_file":
		return e.editFile(input)
	case "run_command":
		return e.runCommand(ctx, input)
	case "list_dir":
		return e.listDir(input)
	default:
		return toolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}
	}
}

// modifiedFiles returns the written paths relative to the working
// directory, sorted.
func (e *toolExecutor) modifiedFiles() []string {
	var out []string
	for p := range e.modified {
		if rel, err := filepath.Rel(e.workDir, p); err == nil && !strings.HasPrefix(rel, "..") {
			out = append(out, rel)
		} else {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// resolvePath confines paths to the working directory; escapes resolve
// back inside it.
func (e *toolExecutor) resolvePath(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.workDir, path)
	}
	clean := filepath.Clean(path)
	rel, err := filepath.Rel(e.workDir, clean)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %s escapes the working directory", path)
	}
	return clean, nil
}

func (e *toolExecutor) readFile(input json.RawMessage) toolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return toolResult{Content: err.Error(), IsError: true}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return toolResult{Content: fmt.Sprintf("read failed: %v", err), IsError: true}
	}
	out := string(content)
	if len(out) > maxToolOutput {
		out = out[:maxToolOutput] + "\n... (truncated)"
	}
	return toolResult{Content: out}
}

func (e *toolExecutor) writeFile(input json.RawMessage) toolResult {
	var params struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return toolResult{Content: err.Error(), IsError: true}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return toolResult{Content: fmt.Sprintf("create directory: %v", err), IsError: true}
	}
	if err := os.WriteFile(path, []byte(params.Content), 0o644); err != nil {
		return toolResult{Content: fmt.Sprintf("write failed: %v", err), IsError: true}
	}
	e.modified[path] = true
	return toolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(params.Content), params.Path)}
}

func (e *toolExecutor) editFile(input json.RawMessage) toolResult {
	var params struct {
		Path       string `json:"path"`
		OldText    string `json:"old_text"`
		NewText    string `json:"new_text"`
		ReplaceAll bool   `json:"replace_all"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return toolResult{Content: err.Error(), IsError: true}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return toolResult{Content: fmt.Sprintf("read failed: %v", err), IsError: true}
	}
	text := string(content)
	count := strings.Count(text, params.OldText)
	if count == 0 {
		return toolResult{Content: "old_text not found in file", IsError: true}
	}
	if !params.ReplaceAll && count > 1 {
		return toolResult{
			Content: fmt.Sprintf("old_text found %d times; must be unique or use replace_all", count),
			IsError: true,
		}
	}
	if params.ReplaceAll {
		text = strings.ReplaceAll(text, params.OldText, params.NewText)
	} else {
		text = strings.Replace(text, params.OldText, params.NewText, 1)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return toolResult{Content: fmt.Sprintf("write failed: %v", err), IsError: true}
	}
	e.modified[path] = true
	return toolResult{Content: "edit applied"}
}

func (e *toolExecutor) runCommand(ctx context.Context, input json.RawMessage) toolResult {
	var params struct {
		Command   string `json:"command"`
		TimeoutMS int    `json:"timeout_ms"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
	}
	timeout := 2 * time.Minute
	if params.TimeoutMS > 0 {
		timeout = time.Duration(params.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "bash", "-c", params.Command)
	cmd.Dir = e.workDir
	output, err := cmd.CombinedOutput()
	out := string(output)
	if len(out) > maxToolOutput {
		out = out[:maxToolOutput] + "\n... (truncated)"
	}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return toolResult{Content: fmt.Sprintf("command timed out after %v:\n%s", timeout, out), IsError: true}
		}
		return toolResult{Content: fmt.Sprintf("%s\nerror: %v", out, err), IsError: true}
	}
	return toolResult{Content: out}
}

func (e *toolExecutor) listDir(input json.RawMessage) toolResult {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return toolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}
	}
	if params.Path == "" {
		params.Path = "."
	}
	path, err := e.resolvePath(params.Path)
	if err != nil {
		return toolResult{Content: err.Error(), IsError: true}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return toolResult{Content: fmt.Sprintf("read directory: %v", err), IsError: true}
	}
	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&b, "%s/\n", entry.Name())
		} else {
			fmt.Fprintf(&b, "%s\n", entry.Name())
		}
	}
	return toolResult{Content: b.String()}
}
