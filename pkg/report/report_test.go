package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/sources"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArray_ToleratesBadInput(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		want     int
	}{
		{"empty", "", 0},
		{"blank", "   ", 0},
		{"null", "null", 0},
		{"malformed", `[{"url": "a"`, 0},
		{"object instead of array", `{"url": "a"}`, 0},
		{"string", `"hello"`, 0},
		{"number", `42`, 0},
		{"mixed elements", `[{"url": "a"}, 3, "x", null, [1], {"url": "b"}]`, 2},
		{"wrong field types", `[{"url": 12, "short_description": true}]`, 1},
		{"nested field values", `[{"url": {"href": "x"}, "short_description": ["a"]}]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []Source
			assert.NotPanics(t, func() { got = parseArray[Source](tt.fragment) })
			assert.NotNil(t, got)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestSource_Link(t *testing.T) {
	docs := parseArray[Source](`[
		{"url": "https://a.kz"},
		{"url": "null", "comment_url": "https://fb.com/c/1"},
		{"url": null},
		{"comment_url": "null"}
	]`)
	require.Len(t, docs, 4)

	assert.Equal(t, "https://a.kz", docs[0].Link())
	assert.Equal(t, "https://fb.com/c/1", docs[1].Link())
	assert.Equal(t, "", docs[2].Link())
	assert.Equal(t, "", docs[3].Link())
}

func TestOpinion_RelevScoreTolerant(t *testing.T) {
	opinions := parseArray[Opinion](`[{"relev_score": 0.75}, {"relev_score": "0.5"}, {"relev_score": null}]`)
	require.Len(t, opinions, 3)

	f, ok := opinions[0].RelevScore.Float()
	assert.True(t, ok)
	assert.InDelta(t, 0.75, f, 1e-9)

	f, ok = opinions[1].RelevScore.Float()
	assert.True(t, ok)
	assert.InDelta(t, 0.5, f, 1e-9)

	_, ok = opinions[2].RelevScore.Float()
	assert.False(t, ok)
}

func TestParseWeb(t *testing.T) {
	citations, text := parseWeb(`{"citations": ["https://a.kz", 5, "", "https://b.kz"], "research": "## Summary"}`)
	assert.Equal(t, []string{"https://a.kz", "https://b.kz"}, citations)
	assert.Equal(t, "## Summary", text)

	for _, fragment := range []string{"", "[]", "null", `"text"`, `{"citations": "x"}`, `{broken`} {
		citations, text := parseWeb(fragment)
		assert.Empty(t, citations, fragment)
		assert.NotNil(t, citations, fragment)
		assert.Empty(t, text, fragment)
	}
}

func opinionsJSON(tags ...string) string {
	items := make([]map[string]string, 0, len(tags))
	for _, tag := range tags {
		items = append(items, map[string]string{"opinion": tag, "link": "https://x.kz/" + tag})
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func TestAggregate_Merges(t *testing.T) {
	f := Fragments{
		Web:              `{"citations": ["https://a.kz", "https://b.kz"], "research": "text"}`,
		FB:               `[{"comment_url": "https://fb.com/1"}]`,
		Instagram:        `[{"url": "https://ig.com/1"}, {"url": "https://ig.com/2"}]`,
		FBOpinion:        opinionsJSON("negative"),
		InstagramOpinion: opinionsJSON("позитивное"),
		Dialogs:          `[{"url": "https://e.gov.kz/1"}]`,
		DialogsOpinion:   opinionsJSON("neutral"),
		OpenData:         `[{"url": "https://data.egov.kz/1"}]`,
		OpenDataOpinion:  opinionsJSON("negative", "негативное"),
		Adilet:           `[{"url": "https://adilet.zan.kz/1"}]`,
		AdiletOpinion:    opinionsJSON("positive"),
		NLA:              `[{"url": "https://legalacts.egov.kz/1"}, {"url": "https://legalacts.egov.kz/2"}]`,
		NLAOpinion:       opinionsJSON("нейтральное", "mixed"),
	}

	r := Aggregate(f)

	assert.Len(t, r.Citations, 2)
	assert.Equal(t, "text", r.ResearchText)
	assert.Len(t, r.Dialogs, 2)
	assert.Len(t, r.DialogsOpinion, 3)
	assert.Len(t, r.Social, 3)
	assert.Len(t, r.SocialOpinion, 2)
	assert.Len(t, r.Legal, 3)
	assert.Len(t, r.LegalOpinion, 3)
	assert.Equal(t, "https://adilet.zan.kz/1", r.Legal[0].Link(), "adilet sources come first")
	assert.Equal(t, "нейтральное", r.LegalOpinion[0].Opinion.String(), "nla opinions come first")

	want := Sentiment{Positive: 2, Negative: 3, Neutral: 2, Unclassified: 1}
	if diff := cmp.Diff(want, r.Sentiment); diff != "" {
		t.Errorf("sentiment mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(r.AllOpinions), r.Sentiment.Total())

	appealsRelevant, actsRelevant := 3, 3
	wantStats := []Statistic{
		{Label: "Web sources used", Value: 2},
		{Label: "Social media posts analysed", Value: 3},
		{Label: "Citizen appeals found", Value: 2, Relevant: &appealsRelevant},
		{Label: "Legal acts found", Value: 3, Relevant: &actsRelevant},
	}
	if diff := cmp.Diff(wantStats, r.Statistics); diff != "" {
		t.Errorf("statistics mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"neutral", "negative", "негативное", "negative", "позитивное", "нейтральное", "mixed", "positive"}, r.Opinions())
}

func TestAggregate_EmptyAndIdempotent(t *testing.T) {
	empty := Aggregate(Fragments{})
	assert.True(t, empty.Empty())
	assert.Equal(t, 0, empty.Sentiment.Total())
	assert.NotNil(t, empty.Dialogs)
	require.Len(t, empty.Statistics, 4)

	f := Fragments{FBOpinion: opinionsJSON("positive", "negative"), Web: `{"citations":["u"]}`}
	if diff := cmp.Diff(Aggregate(f), Aggregate(f)); diff != "" {
		t.Errorf("aggregate is not deterministic:\n%s", diff)
	}
}

func TestAggregate_SentimentSumsToOpinionCount(t *testing.T) {
	garbage := []string{"", "null", "{", `[1,2]`, opinionsJSON("positive", "x", "NEGATIVE"), opinionsJSON("нейтральное")}
	for _, a := range garbage {
		for _, b := range garbage {
			r := Aggregate(Fragments{DialogsOpinion: a, NLAOpinion: b, FBOpinion: a, AdiletOpinion: b})
			s := r.Sentiment
			assert.Equal(t, len(r.AllOpinions), s.Positive+s.Negative+s.Neutral+s.Unclassified)
		}
	}
}

func TestFragmentsFromResults(t *testing.T) {
	results := map[domain.ProcessType]domain.SubTaskResult{
		domain.ProcessWeb:      {Type: domain.ProcessWeb, Payload: json.RawMessage(` {"citations": ["a"], "research": "r"} `)},
		domain.ProcessFB:       {Type: domain.ProcessFB, Payload: json.RawMessage(`{"all": [{"url": "f"}], "ai_response": [{"opinion": "positive"}]}`)},
		domain.ProcessNLA:      {Type: domain.ProcessNLA, Payload: json.RawMessage(`"not an object"`)},
		domain.ProcessBudgets:  {Type: domain.ProcessBudgets, Payload: json.RawMessage(`[{"sum": 1}]`)},
		domain.ProcessOpenData: {Type: domain.ProcessOpenData},
	}

	f := FragmentsFromResults(results)
	assert.Equal(t, `{"citations": ["a"], "research": "r"}`, f.Web)
	assert.JSONEq(t, `[{"url": "f"}]`, f.FB)
	assert.JSONEq(t, `[{"opinion": "positive"}]`, f.FBOpinion)
	assert.Empty(t, f.NLA)
	assert.Empty(t, f.OpenData)
	assert.Equal(t, `[{"sum": 1}]`, f.Budgets)

	r := FromResults(results)
	assert.Equal(t, 1, r.Sentiment.Positive)
	assert.Len(t, r.Social, 1)
}

func TestFragmentsFrom_ShapeFromRegistry(t *testing.T) {
	registry := sources.NewRegistry()
	require.NoError(t, registry.Register(sources.Kind{Type: domain.ProcessFB, Section: sources.SectionSocial, Shape: sources.ShapeWhole}))
	require.NoError(t, registry.Register(sources.Kind{Type: domain.ProcessWeb, Section: sources.SectionWeb, Shape: sources.ShapeSplit}))

	payload := json.RawMessage(`{"all": [{"url": "f"}], "ai_response": []}`)
	f := fragmentsFrom(registry, map[domain.ProcessType]domain.SubTaskResult{
		domain.ProcessFB:        {Type: domain.ProcessFB, Payload: payload},
		domain.ProcessWeb:       {Type: domain.ProcessWeb, Payload: payload},
		domain.ProcessInstagram: {Type: domain.ProcessInstagram, Payload: payload},
	})

	assert.Equal(t, string(payload), f.FB, "whole payloads are kept as they are")
	assert.Empty(t, f.FBOpinion)
	assert.JSONEq(t, `[{"url": "f"}]`, f.Web, "split payloads contribute their sources")
	assert.Empty(t, f.Instagram, "unregistered types are ignored")
}

func TestSummary(t *testing.T) {
	r := Aggregate(Fragments{DialogsOpinion: opinionsJSON("positive", "negative", "negative", "other")})
	got := r.Summary("  Mostly negative  ")

	want := domain.SentimentSummary{All: 3, Negative: 2, Positive: 1, Neutral: 0, Dominating: "Mostly negative"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyAndDominant(t *testing.T) {
	assert.Equal(t, TonePositive, Classify("позитивное"))
	assert.Equal(t, ToneNegative, Classify(" Negative "))
	assert.Equal(t, ToneNeutral, Classify("нейтральное"))
	assert.Equal(t, ToneUnclassified, Classify("mixed"))

	assert.Equal(t, ToneNegative, Sentiment{Positive: 1, Negative: 4, Neutral: 2}.Dominant())
	assert.Equal(t, ToneUnclassified, Sentiment{Positive: 2, Negative: 2}.Dominant())
	assert.Equal(t, ToneUnclassified, Sentiment{Unclassified: 5}.Dominant())
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		created, finished string
		want              string
		ok                bool
	}{
		{"2024-05-01T10:00:00", "2024-05-01T11:02:03", "1h 2m 3s", true},
		{"2024-05-01T10:00:00", "2024-05-01T10:05:00", "5m", true},
		{"2024-05-01T10:00:00", "2024-05-01T12:00:09", "2h 9s", true},
		{"2024-05-01T10:00:00", "2024-05-01T10:00:00", "0s", true},
		{"2024-05-01T10:00:30Z", "2024-05-01T10:00:00Z", "30s", true},
		{"2024-05-01 10:00:00.123456", "2024-05-01 10:00:42.999", "42s", true},
		{"", "2024-05-01T10:00:00", "", false},
		{"yesterday", "2024-05-01T10:00:00", "", false},
	}

	for _, tt := range tests {
		got, ok := FormatElapsed(tt.created, tt.finished)
		assert.Equal(t, tt.ok, ok, "%s -> %s", tt.created, tt.finished)
		assert.Equal(t, tt.want, got, "%s -> %s", tt.created, tt.finished)
	}

	assert.Equal(t, "1m 1s", FormatDuration(61*time.Second+500*time.Millisecond))
}
