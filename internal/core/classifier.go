package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// llmConfidence is the fixed confidence assigned to a successfully parsed
// language-model classification. The model does not emit calibrated
// probabilities, so this is a documented approximation.
const llmConfidence = 0.9

const defaultSystemPrompt = `You are an email classifier. Categorize each email into exactly one of the listed categories. Respond with the category name only.`

const spamReviewSystemPrompt = `You are an email classifier focusing on identifying false positives in spam detection.
Review each email carefully to determine if it's legitimate or actual spam.
Be very careful when classifying: if there's ANY indication the email is from a
legitimate sender that the user might want to see, do NOT classify it as Spam.
Consider the sender domain, writing style, and content. Many legitimate
marketing emails and newsletters are incorrectly flagged as spam.
Respond with the category name only.`

// LanguageClassifier classifies emails by prompting a chat-completion
// endpoint and parsing the free-form response into a category.
type LanguageClassifier struct {
	chat            ChatClient
	categories      CategorySet
	personalContext []string
	systemPrompt    string
	logger          *zap.Logger
}

// NewLanguageClassifier creates a classifier over the closed category set.
// personalContext is an optional list of one-line facts appended to the
// system prompt.
func NewLanguageClassifier(chat ChatClient, categories CategorySet, personalContext []string, logger *zap.Logger) *LanguageClassifier {
	return &LanguageClassifier{
		chat:            chat,
		categories:      categories,
		personalContext: personalContext,
		systemPrompt:    defaultSystemPrompt,
		logger:          logger,
	}
}

// ForSpamReview returns a copy of the classifier with a stricter system
// prompt tuned to catching spam false positives.
func (c *LanguageClassifier) ForSpamReview() *LanguageClassifier {
	clone := *c
	clone.systemPrompt = spamReviewSystemPrompt
	return &clone
}

// Classify sends the email to the language model and parses the reply.
// A reply containing no known category yields the Uncategorized sentinel
// with confidence 0.0; that is not an error. Transport failures are.
func (c *LanguageClassifier) Classify(ctx context.Context, email *Email) (*ClassificationResult, error) {
	system := c.systemPrompt
	if len(c.personalContext) > 0 {
		system += "\n\nHere is some personal context to help you better classify emails:\n" +
			strings.Join(c.personalContext, "\n") +
			"\nUse this context to better understand the significance of senders and email contents."
	}

	user := c.userPrompt(email)

	c.logger.Debug("Requesting classification from language model",
		zap.String("sender", email.From),
		zap.String("model", c.chat.Model()))

	text, err := c.chat.Complete(ctx, system, user)
	if err != nil {
		return nil, fmt.Errorf("language model request: %w", err)
	}

	result := &ClassificationResult{
		Source:       SourceLLM,
		ModelUsed:    c.chat.Model(),
		ClassifiedAt: time.Now(),
	}

	if category, ok := ParseCategory(text, c.categories); ok {
		result.Category = category
		result.Confidence = llmConfidence
		c.logger.Debug("Language model classified email",
			zap.String("category", category),
			zap.String("sender", email.From))
	} else {
		result.Category = CategoryUncategorized
		result.Confidence = 0.0
		c.logger.Warn("Language model returned no recognizable category",
			zap.String("response", text),
			zap.String("sender", email.From))
	}

	return result, nil
}

func (c *LanguageClassifier) userPrompt(email *Email) string {
	var b strings.Builder
	b.WriteString("Please categorize this email into exactly one of these categories: ")
	b.WriteString(strings.Join(c.categories.Names(), ", "))
	b.WriteString(".\n\n")
	fmt.Fprintf(&b, "Subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "From: %s\n", email.From)
	if !email.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", email.Date.Format(time.RFC1123Z))
	}
	b.WriteString("\n")
	b.WriteString(email.Snippet)
	return b.String()
}

// ParseCategory scans the response text for the first token that exactly
// matches one of the allowed categories, case-insensitively, and returns the
// category's configured spelling.
func ParseCategory(text string, categories CategorySet) (string, bool) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, token := range tokens {
		if category, ok := categories.Canonical(token); ok {
			return category, true
		}
	}
	return "", false
}
