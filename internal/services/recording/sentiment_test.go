package recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzeSentiment(t *testing.T) {
	cases := []struct {
		name       string
		transcript string
		want       Sentiment
	}{
		{
			name:       "positive call",
			transcript: "Thank you so much, this was really helpful. Great service!",
			want:       SentimentPositive,
		},
		{
			name:       "negative call",
			transcript: "This is terrible, I am very frustrated and upset about this problem.",
			want:       SentimentNegative,
		},
		{
			name:       "tie is neutral",
			transcript: "The service was good but the wait was bad.",
			want:       SentimentNeutral,
		},
		{
			name:       "no sentiment words",
			transcript: "I would like to schedule a consultation for next Tuesday.",
			want:       SentimentNeutral,
		},
		{
			name:       "empty transcript",
			transcript: "",
			want:       SentimentNeutral,
		},
		{
			name:       "case insensitive",
			transcript: "GREAT! PERFECT! WONDERFUL!",
			want:       SentimentPositive,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AnalyzeSentiment(tc.transcript))
		})
	}
}
