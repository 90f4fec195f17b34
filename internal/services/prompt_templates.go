// Package services contains the business logic for exercise generation,
// answer grading, and the external model gateway.
package services

import (
	"fmt"
	"regexp"
	"strings"

	"exercisesapp/internal/config"
)

// placeholderPattern matches ${name} placeholders in prompt templates.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveTemplate replaces every ${name} placeholder with the stringified
// value of context[name]. Unknown placeholders are left verbatim. Pure.
func ResolveTemplate(template string, context map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[2 : len(match)-1]
		if value, ok := context[key]; ok {
			return fmt.Sprintf("%v", value)
		}
		return match
	})
}

// Named prompt templates. Placeholders are resolved with ResolveTemplate.
const (
	// LanguageTeacherTemplate is the system prompt for answer grading.
	LanguageTeacherTemplate = `You are an experienced ${language} (${languageCode}) language teacher evaluating student answers at ${proficiencyLevel} level. Be encouraging and constructive, tolerate minor grammatical errors, and always respond with valid JSON when asked for it.`

	// ExerciseGeneratorTemplate is the system prompt for text generation.
	ExerciseGeneratorTemplate = `You are a language-learning content author. You write short educational texts with comprehension questions for students at a given proficiency level, and you always respond with valid JSON matching the requested schema.`

	gradingPromptTemplate = `
I need to evaluate a student's answer to a language exercise question.

Text passage: "${passage}"

Question: "${question}"

Student's answer: "${answer}"

Evaluate if the student's answer is correct in terms of content and meaning, even if there are minor grammatical errors.
Respond with JSON containing:
1. "correct": boolean indicating if the answer is generally correct (true) or incorrect (false)
2. "feedback": constructive feedback in ${language} explaining what was good and what could be improved

For ${proficiencyLevel} level, focus on whether the student understood the text and answered the question correctly.
`

	generationPromptTemplate = `Generate a language learning text about "${topic}" in ${language} (${languageCode}) at ${level} level (${levelDescription}). The text should be educational, engaging, and appropriate for language learners at this level. Include 4-5 comprehension questions about the text that would be suitable for language practice.`
)

// BuildLanguageTeacherPrompt materializes the grading system prompt for the
// given language and proficiency level.
func BuildLanguageTeacherPrompt(language, languageCode, proficiencyLevel string) string {
	return ResolveTemplate(LanguageTeacherTemplate, map[string]interface{}{
		"language":         language,
		"languageCode":     languageCode,
		"proficiencyLevel": proficiencyLevel,
	})
}

// BuildGradingPrompt materializes the grading user prompt. The passage is
// truncated to the configured excerpt length with an ellipsis when longer.
// Truncation counts characters, not bytes, so multibyte passages stay valid.
func BuildGradingPrompt(passage, question, answer, language, proficiencyLevel string) string {
	excerpt := passage
	if runes := []rune(passage); len(runes) > config.GradingExcerptLength {
		excerpt = string(runes[:config.GradingExcerptLength]) + "..."
	}
	return ResolveTemplate(gradingPromptTemplate, map[string]interface{}{
		"passage":          excerpt,
		"question":         question,
		"answer":           answer,
		"language":         language,
		"proficiencyLevel": proficiencyLevel,
	})
}

// BuildGenerationPrompt materializes the text-generation user prompt.
func BuildGenerationPrompt(topic, language, languageCode, level, levelDescription string) string {
	return ResolveTemplate(generationPromptTemplate, map[string]interface{}{
		"topic":            topic,
		"language":         language,
		"languageCode":     languageCode,
		"level":            level,
		"levelDescription": levelDescription,
	})
}

// CountWords returns the number of whitespace-separated words in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
