// Package promptlib selects a model's base system prompt and loads
// project/user agent instructions, for seeding agent.RequestBuilder's
// stable context (§4.6).
package promptlib

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed anthropic.md
var anthropicPrompt string

//go:embed gemini.md
var geminiPrompt string

//go:embed qwen.md
var qwenPrompt string

//go:embed gpt.md
var gptPrompt string

// SelectPrompt returns the base system prompt for modelID's family.
func SelectPrompt(modelID string) string {
	modelLower := strings.ToLower(modelID)

	switch {
	case strings.Contains(modelLower, "claude"):
		return anthropicPrompt
	case strings.Contains(modelLower, "gemini"):
		return geminiPrompt
	case strings.Contains(modelLower, "gpt"), strings.Contains(modelLower, "o1"):
		return gptPrompt
	case strings.Contains(modelLower, "qwen"):
		return qwenPrompt
	default:
		return anthropicPrompt
	}
}

// LoadAgentInstructions searches for AGENTS.md files from workingDir up to
// the filesystem root, then in the runtime's own config directory, and
// returns their concatenated contents with project-level instructions
// taking precedence over user-level ones.
func LoadAgentInstructions(workingDir string) string {
	var instructions []string

	dir := workingDir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return ""
		}
	}

	for {
		agentsPath := filepath.Join(dir, "AGENTS.md")
		if content := readFileIfExists(agentsPath); content != "" {
			instructions = append(instructions, fmt.Sprintf("Instructions from: %s\n%s", agentsPath, content))
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if home, err := os.UserHomeDir(); err == nil {
		configAgents := filepath.Join(home, ".config", "tronrun", "AGENTS.md")
		if content := readFileIfExists(configAgents); content != "" {
			instructions = append(instructions, fmt.Sprintf("Instructions from: %s\n%s", configAgents, content))
		}
	}

	// Reverse so project-level (found first, walking up from workingDir)
	// ends up last in the joined string, after the user-level file.
	for i, j := 0, len(instructions)-1; i < j; i, j = i+1, j-1 {
		instructions[i], instructions[j] = instructions[j], instructions[i]
	}

	return strings.Join(instructions, "\n\n")
}

func readFileIfExists(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
