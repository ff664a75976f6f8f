package utils

import (
	"unicode/utf8"

	"go.uber.org/zap"
)

// truncationMarker is appended to snippets that were cut at the byte cap.
const truncationMarker = "\n[... truncated ...]"

// TextProcessor turns raw email bodies into bounded, valid-UTF-8 snippets
// suitable for rule matching and prompting.
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// Snippet sanitizes text and truncates it to at most maxSize bytes.
func (tp *TextProcessor) Snippet(text string, maxSize int) string {
	return tp.Truncate(tp.SanitizeUTF8(text), maxSize)
}

// Truncate cuts text to the byte cap without splitting a UTF-8 sequence.
// maxSize <= 0 disables the cap.
func (tp *TextProcessor) Truncate(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}

	tp.logger.Debug("Snippet truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated + truncationMarker
}

// SanitizeUTF8 drops invalid UTF-8 sequences from the string.
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}

	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(text[i:])
			if size == 1 {
				continue
			}
		}
		result = append(result, r)
	}

	tp.logger.Debug("Snippet sanitized",
		zap.Int("original_size", len(text)),
		zap.Int("sanitized_size", len(string(result))))

	return string(result)
}
