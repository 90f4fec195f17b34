package services

import (
	"strings"
	"unicode"

	"exercisesapp/internal/models"
)

// stopwords excluded from heuristic keyword candidates. Short words are
// already filtered by length, so this only needs the longer function words.
var stopwords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true,
	"because": true, "been": true, "before": true, "being": true, "below": true,
	"between": true, "both": true, "cannot": true, "could": true, "does": true,
	"doing": true, "down": true, "during": true, "each": true, "from": true,
	"further": true, "have": true, "having": true, "here": true, "into": true,
	"itself": true, "just": true, "more": true, "most": true, "once": true,
	"only": true, "other": true, "over": true, "same": true, "should": true,
	"some": true, "such": true, "than": true, "that": true, "their": true,
	"theirs": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "under": true,
	"until": true, "very": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "while": true, "with": true, "would": true,
	"your": true, "yours": true,
}

const (
	heuristicCorrectFeedback   = "Great job! Your answer covers the key points from the text."
	heuristicIncorrectFeedback = "Not quite. Take another look at the text and try to use the key ideas from the passage in your answer."
)

// heuristicGrade grades an answer by lexical overlap with the passage when
// the model gateway is unavailable. Candidate keywords are content words from
// the passage that also appear in the question, padded with further passage
// keywords up to the configured minimum; the answer is correct when it
// contains at least ceil(candidates/divisor) of them.
func (s *FeedbackService) heuristicGrade(passage, question, answer string) *models.GradedAnswer {
	grader := s.cfg.Grader

	passageWords := contentWords(passage, grader.MinKeywordLength)
	questionSet := wordSet(question)

	var candidates []string
	seen := make(map[string]bool)
	for _, word := range passageWords {
		if questionSet[word] && !seen[word] {
			candidates = append(candidates, word)
			seen[word] = true
		}
	}

	// Pad with further passage keywords so sparse questions still get a
	// meaningful candidate set
	for _, word := range passageWords {
		if len(candidates) >= grader.MinCandidates {
			break
		}
		if !seen[word] {
			candidates = append(candidates, word)
			seen[word] = true
		}
	}

	if len(candidates) == 0 {
		return &models.GradedAnswer{Correct: false, Feedback: heuristicIncorrectFeedback}
	}

	answerSet := wordSet(answer)
	hits := 0
	for _, candidate := range candidates {
		if answerSet[candidate] {
			hits++
		}
	}

	threshold := (len(candidates) + grader.ThresholdDivisor - 1) / grader.ThresholdDivisor
	if hits >= threshold {
		return &models.GradedAnswer{Correct: true, Feedback: heuristicCorrectFeedback}
	}
	return &models.GradedAnswer{Correct: false, Feedback: heuristicIncorrectFeedback}
}

// contentWords returns the lowercased words of text longer than minLength
// that are not stopwords, in order of first appearance.
func contentWords(text string, minLength int) []string {
	var words []string
	for _, word := range tokenize(text) {
		if len(word) > minLength && !stopwords[word] {
			words = append(words, word)
		}
	}
	return words
}

// wordSet returns the lowercased words of text as a membership set.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range tokenize(text) {
		set[word] = true
	}
	return set
}

// tokenize splits text into lowercased words on non-letter, non-digit runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
