// Package tokenestimator provides a fast, provider-agnostic token-count
// heuristic used only for request planning (§4.6, §9 "vendor usage is
// authoritative"). It never replaces the usage numbers a provider reports.
package tokenestimator

import (
	"math"

	"github.com/xonecas/tronrun/internal/content"
)

// CharsPerToken is the flat character-to-token ratio used for text content.
const CharsPerToken = 4

// imageBase64MinTokens is the floor applied to the base64 image formula.
const imageBase64MinTokens = 85

// imageURLTokens is the flat estimate for url-referenced or data-less images.
const imageURLTokens = 1500

// rulesHeaderOverhead is the exact char length of the synthesized rules
// content header.
const rulesHeaderOverhead = 17

// EstimateText estimates the token count of a plain string.
func EstimateText(s string) int {
	return ceilDiv(len(s), CharsPerToken)
}

// EstimateBlock estimates the token count of a single content block.
func EstimateBlock(b content.Block) int {
	switch b.Type {
	case content.BlockText, content.BlockThinking:
		return EstimateText(b.Text)
	case content.BlockToolResult:
		return EstimateText(b.Text)
	case content.BlockToolUse:
		return EstimateText(string(b.ToolInput)) + EstimateText(b.ToolName)
	case content.BlockImage, content.BlockDocument:
		return estimateImage(b)
	default:
		return 0
	}
}

func estimateImage(b content.Block) int {
	if b.Data == "" {
		return imageURLTokens
	}
	n := float64(len(b.Data)) * 0.75 * 5 / 750
	tokens := int(math.Ceil(n))
	if tokens < imageBase64MinTokens {
		return imageBase64MinTokens
	}
	return tokens
}

// EstimateBlocks sums the estimate of every block.
func EstimateBlocks(blocks []content.Block) int {
	total := 0
	for _, b := range blocks {
		total += EstimateBlock(b)
	}
	return total
}

// MessageOverhead is the fixed per-message token overhead attributed to role
// framing, independent of content.
func MessageOverhead(role string) int {
	return len(role) + 10
}

// RulesHeaderOverhead is the fixed overhead of the synthesized rules-content
// header injected ahead of rules text in the assembled context.
func RulesHeaderOverhead() int {
	return rulesHeaderOverhead
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
