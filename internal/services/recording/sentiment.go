package recording

import (
	"regexp"
	"strings"
)

// Sentiment is the overall tone of a call transcript.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "excellent": {}, "wonderful": {}, "happy": {},
	"pleased": {}, "thanks": {}, "thank": {}, "helpful": {}, "perfect": {},
	"appreciate": {}, "awesome": {}, "fantastic": {}, "yes": {}, "love": {},
	"resolved": {}, "satisfied": {}, "glad": {},
}

var negativeWords = map[string]struct{}{
	"bad": {}, "terrible": {}, "awful": {}, "angry": {}, "upset": {},
	"frustrated": {}, "disappointed": {}, "problem": {}, "issue": {},
	"complaint": {}, "unhappy": {}, "wrong": {}, "horrible": {}, "no": {},
	"cancel": {}, "refund": {}, "worst": {}, "annoyed": {},
}

var wordRe = regexp.MustCompile(`[a-z']+`)

// AnalyzeSentiment scores a transcript by counting positive and negative
// words. A tie, including the empty transcript, is neutral.
func AnalyzeSentiment(transcript string) Sentiment {
	words := wordRe.FindAllString(strings.ToLower(transcript), -1)

	positive, negative := 0, 0
	for _, w := range words {
		if _, ok := positiveWords[w]; ok {
			positive++
		}
		if _, ok := negativeWords[w]; ok {
			negative++
		}
	}

	switch {
	case positive > negative:
		return SentimentPositive
	case negative > positive:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}
