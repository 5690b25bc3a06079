package report

import "strings"

// Tone is the sentiment class of an opinion tag
type Tone int

const (
	ToneUnclassified Tone = iota
	TonePositive
	ToneNegative
	ToneNeutral
)

// Classify maps an English or Russian opinion tag to a tone
func Classify(tag string) Tone {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "positive", "позитивное":
		return TonePositive
	case "negative", "негативное":
		return ToneNegative
	case "neutral", "нейтральное":
		return ToneNeutral
	default:
		return ToneUnclassified
	}
}

// Label returns the English name of the tone
func (t Tone) Label() string {
	switch t {
	case TonePositive:
		return "positive"
	case ToneNegative:
		return "negative"
	case ToneNeutral:
		return "neutral"
	default:
		return "unclassified"
	}
}

// Sentiment counts opinions per tone
type Sentiment struct {
	Positive     int
	Negative     int
	Neutral      int
	Unclassified int
}

// Count tallies opinions by tone
func Count(opinions []Opinion) Sentiment {
	var s Sentiment
	for _, o := range opinions {
		switch o.Tone() {
		case TonePositive:
			s.Positive++
		case ToneNegative:
			s.Negative++
		case ToneNeutral:
			s.Neutral++
		default:
			s.Unclassified++
		}
	}
	return s
}

// Classified returns the number of opinions with a known tone
func (s Sentiment) Classified() int {
	return s.Positive + s.Negative + s.Neutral
}

// Total returns the number of opinions counted
func (s Sentiment) Total() int {
	return s.Classified() + s.Unclassified
}

// Dominant returns the most frequent known tone, or ToneUnclassified when
// nothing is classified or the top counts tie
func (s Sentiment) Dominant() Tone {
	best, bestCount, tie := ToneUnclassified, 0, false
	for _, c := range []struct {
		tone  Tone
		count int
	}{{TonePositive, s.Positive}, {ToneNegative, s.Negative}, {ToneNeutral, s.Neutral}} {
		switch {
		case c.count > bestCount:
			best, bestCount, tie = c.tone, c.count, false
		case c.count == bestCount && c.count > 0:
			tie = true
		}
	}
	if tie {
		return ToneUnclassified
	}
	return best
}
