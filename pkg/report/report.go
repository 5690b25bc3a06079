// Package report turns raw sub-task payloads into the data shown in a
// research report. Every function here is pure.
package report

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/etdc/insight/pkg/domain"
	"github.com/etdc/insight/pkg/sources"
)

// Fragments holds the JSON-encoded payload parts of each source. Any field
// may be empty or malformed.
type Fragments struct {
	Web              string
	FB               string
	FBOpinion        string
	Instagram        string
	InstagramOpinion string
	Dialogs          string
	DialogsOpinion   string
	OpenData         string
	OpenDataOpinion  string
	Adilet           string
	AdiletOpinion    string
	NLA              string
	NLAOpinion       string
	Budgets          string
}

// FragmentsFromResults splits sub-task payloads into fragments using the
// payload shapes of the default source registry.
func FragmentsFromResults(results map[domain.ProcessType]domain.SubTaskResult) Fragments {
	return fragmentsFrom(sources.Default(), results)
}

// fragmentsFrom fills fragments for every registered type. Split payloads
// contribute their "all" and "ai_response" members, whole payloads are used
// as they are.
func fragmentsFrom(registry *sources.Registry, results map[domain.ProcessType]domain.SubTaskResult) Fragments {
	var f Fragments
	for t, r := range results {
		kind, err := registry.Get(t)
		if err != nil {
			continue
		}
		all, opinions := f.slots(t)
		if all == nil {
			continue
		}

		if !kind.HasOpinions() {
			*all = whole(r.Payload)
			continue
		}
		a, o := split(r.Payload)
		*all = a
		if opinions != nil {
			*opinions = o
		}
	}
	return f
}

// slots returns the fields a process type fills; opinions is nil for
// sources without an opinion fragment
func (f *Fragments) slots(t domain.ProcessType) (all, opinions *string) {
	switch t {
	case domain.ProcessWeb:
		return &f.Web, nil
	case domain.ProcessBudgets:
		return &f.Budgets, nil
	case domain.ProcessFB:
		return &f.FB, &f.FBOpinion
	case domain.ProcessInstagram:
		return &f.Instagram, &f.InstagramOpinion
	case domain.ProcessDialog:
		return &f.Dialogs, &f.DialogsOpinion
	case domain.ProcessOpenData:
		return &f.OpenData, &f.OpenDataOpinion
	case domain.ProcessAdilet:
		return &f.Adilet, &f.AdiletOpinion
	case domain.ProcessNLA:
		return &f.NLA, &f.NLAOpinion
	}
	return nil, nil
}

func whole(payload json.RawMessage) string {
	return string(bytes.TrimSpace(payload))
}

func split(payload json.RawMessage) (all, opinions string) {
	var parts struct {
		All        json.RawMessage `json:"all"`
		AIResponse json.RawMessage `json:"ai_response"`
	}
	if err := json.Unmarshal(payload, &parts); err != nil {
		return "", ""
	}
	return string(parts.All), string(parts.AIResponse)
}

// Source is a collected document, post or record
type Source struct {
	URL              Text `json:"url"`
	CommentURL       Text `json:"comment_url"`
	ShortDescription Text `json:"short_description"`
}

// Link returns the source URL, or empty when it is missing
func (s Source) Link() string {
	if u := s.URL.String(); u != "" {
		return u
	}
	return s.CommentURL.String()
}

// Description returns the short description
func (s Source) Description() string {
	return s.ShortDescription.String()
}

// Opinion is a source classified by the backend
type Opinion struct {
	Link       Text `json:"link"`
	Opinion    Text `json:"opinion"`
	RelevScore Text `json:"relev_score"`
	Summary    Text `json:"summary"`
}

// Tone classifies the opinion tag
func (o Opinion) Tone() Tone {
	return Classify(o.Opinion.String())
}

// Statistic is one of the headline numbers of a report
type Statistic struct {
	Label string
	Value int
	// Relevant is the number of classified items, when the card shows one
	Relevant *int
}

// Report is the aggregated content of a research task
type Report struct {
	Citations    []string
	ResearchText string

	Dialogs        []Source
	DialogsOpinion []Opinion
	Social         []Source
	SocialOpinion  []Opinion
	Legal          []Source
	LegalOpinion   []Opinion

	AllOpinions []Opinion
	Sentiment   Sentiment
	Statistics  []Statistic
}

// Aggregate merges fragments into a report
func Aggregate(f Fragments) Report {
	var r Report

	r.Citations, r.ResearchText = parseWeb(f.Web)

	dialogsOpinion := parseArray[Opinion](f.DialogsOpinion)
	openDataOpinion := parseArray[Opinion](f.OpenDataOpinion)
	fbOpinion := parseArray[Opinion](f.FBOpinion)
	instagramOpinion := parseArray[Opinion](f.InstagramOpinion)
	nlaOpinion := parseArray[Opinion](f.NLAOpinion)
	adiletOpinion := parseArray[Opinion](f.AdiletOpinion)

	r.Dialogs = concat(parseArray[Source](f.Dialogs), parseArray[Source](f.OpenData))
	r.DialogsOpinion = concat(dialogsOpinion, openDataOpinion)
	r.Social = concat(parseArray[Source](f.FB), parseArray[Source](f.Instagram))
	r.SocialOpinion = concat(fbOpinion, instagramOpinion)
	r.Legal = concat(parseArray[Source](f.Adilet), parseArray[Source](f.NLA))
	r.LegalOpinion = concat(nlaOpinion, adiletOpinion)

	r.AllOpinions = concat(dialogsOpinion, openDataOpinion, fbOpinion, instagramOpinion, nlaOpinion, adiletOpinion)
	r.Sentiment = Count(r.AllOpinions)

	dialogsRelevant := len(r.DialogsOpinion)
	legalRelevant := len(r.LegalOpinion)
	r.Statistics = []Statistic{
		{Label: "Web sources used", Value: len(r.Citations)},
		{Label: "Social media posts analysed", Value: len(r.Social)},
		{Label: "Citizen appeals found", Value: len(r.Dialogs), Relevant: &dialogsRelevant},
		{Label: "Legal acts found", Value: len(r.Legal), Relevant: &legalRelevant},
	}

	return r
}

// FromResults aggregates sub-task results directly
func FromResults(results map[domain.ProcessType]domain.SubTaskResult) Report {
	return Aggregate(FragmentsFromResults(results))
}

// Opinions returns the opinion tags of every classified item, in source order
func (r Report) Opinions() []string {
	out := make([]string, 0, len(r.AllOpinions))
	for _, o := range r.AllOpinions {
		out = append(out, o.Opinion.String())
	}
	return out
}

// Summary builds the digest generation body
func (r Report) Summary(dominating string) domain.SentimentSummary {
	return domain.SentimentSummary{
		All:        r.Sentiment.Classified(),
		Negative:   r.Sentiment.Negative,
		Positive:   r.Sentiment.Positive,
		Neutral:    r.Sentiment.Neutral,
		Dominating: strings.TrimSpace(dominating),
	}
}

// Empty reports whether no source produced any data
func (r Report) Empty() bool {
	return len(r.Citations) == 0 && r.ResearchText == "" &&
		len(r.Dialogs) == 0 && len(r.DialogsOpinion) == 0 &&
		len(r.Social) == 0 && len(r.SocialOpinion) == 0 &&
		len(r.Legal) == 0 && len(r.LegalOpinion) == 0
}

func concat[T any](parts ...[]T) []T {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
