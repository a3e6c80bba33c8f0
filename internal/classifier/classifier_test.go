package classifier_test

import (
	"reflect"
	"testing"
	"time"

	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/platform"
	"murmur/internal/templates"
)

type staticTemplates []templates.Template

func (s staticTemplates) Snapshot() []templates.Template { return s }

func newClassifier(t *testing.T, tieBreak string, tpls staticTemplates) *classifier.Classifier {
	t.Helper()
	c, err := classifier.New(config.Classifier{TemplateTieBreak: tieBreak, Rules: config.DefaultRules()}, tpls)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return c
}

func content(body string) platform.ContentItem {
	return platform.ContentItem{SourceID: "c-1", Author: "alice", Body: body, Kind: platform.KindComment}
}

func TestClassifyCategories(t *testing.T) {
	c := newClassifier(t, config.TieBreakRecent, nil)
	tests := []struct {
		name     string
		body     string
		keywords []string
		category classifier.Category
		priority int
		mode     string
		matched  []string
	}{
		{"legal keyword", "请问律师怎么收费", []string{"法律咨询"}, classifier.LegalConsultation, 30, config.ModeTemplate, []string{"律师"}},
		{"task keyword raises priority", "法律咨询：合同纠纷", []string{"法律咨询"}, classifier.LegalConsultation, 31, config.ModeTemplate, []string{"法律咨询", "咨询", "法律", "合同", "纠纷"}},
		{"spam pattern", "加我微信领资料", nil, classifier.Spam, 1, config.ModeTemplate, nil},
		{"gratitude", "谢谢老师", nil, classifier.Gratitude, 10, config.ModeTemplate, []string{"谢谢"}},
		{"challenge uses ai", "你说得不对", nil, classifier.Challenge, 20, config.ModeAI, []string{"不对"}},
		{"question pattern", "这种情况怎么办？", nil, classifier.LegalConsultation, 25, config.ModeAI, nil},
		{"first rule wins", "感谢律师", nil, classifier.LegalConsultation, 30, config.ModeTemplate, []string{"律师"}},
		{"unmatched is other", "今天天气不错", nil, classifier.Other, 0, config.ModeAI, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(content(tc.body), tc.keywords)
			if got.Category != tc.category {
				t.Fatalf("category = %s, want %s", got.Category, tc.category)
			}
			if got.Priority != tc.priority {
				t.Fatalf("priority = %d, want %d", got.Priority, tc.priority)
			}
			if got.Mode != tc.mode {
				t.Fatalf("mode = %s, want %s", got.Mode, tc.mode)
			}
			if len(got.MatchedKeywords) != len(tc.matched) || (len(tc.matched) > 0 && !reflect.DeepEqual(got.MatchedKeywords, tc.matched)) {
				t.Fatalf("matched = %v, want %v", got.MatchedKeywords, tc.matched)
			}
			if got.SourceID != "c-1" || got.Body != tc.body {
				t.Fatalf("content not carried through: %#v", got.ContentItem)
			}
		})
	}
}

func TestClassifyFoldsCase(t *testing.T) {
	c, err := classifier.New(config.Classifier{Rules: []config.Rule{
		{Category: "LegalConsultation", Keywords: []string{"LAWYER"}, Priority: 5, Mode: config.ModeTemplate},
	}}, nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	got := c.Classify(content("Need a Lawyer today"), []string{"TODAY"})
	if got.Category != classifier.LegalConsultation {
		t.Fatalf("expected case-insensitive match, got %s", got.Category)
	}
	if got.Priority != 6 {
		t.Fatalf("expected task keyword to match case-insensitively, priority %d", got.Priority)
	}
}

func TestTemplateSelection(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	tpls := staticTemplates{
		{ID: "a-contract", Keywords: []string{"合同"}, Text: "a", Priority: 9, Updated: older},
		{ID: "b-contract", Keywords: []string{"合同"}, Text: "b", Priority: 1, Updated: newer},
		{ID: "c-dispute", Keywords: []string{"合同", "纠纷"}, Text: "c", Updated: older},
		{ID: "d-thanks", Category: "Gratitude", Keywords: []string{"律师"}, Text: "d", Updated: newer},
	}

	recent := newClassifier(t, config.TieBreakRecent, tpls)
	if got := recent.Classify(content("合同纠纷"), nil); got.TemplateID != "c-dispute" {
		t.Fatalf("expected most overlap to win, got %q", got.TemplateID)
	}
	if got := recent.Classify(content("合同问题"), nil); got.TemplateID != "b-contract" {
		t.Fatalf("expected most recent template on tie, got %q", got.TemplateID)
	}

	byPriority := newClassifier(t, config.TieBreakPriority, tpls)
	if got := byPriority.Classify(content("合同问题"), nil); got.TemplateID != "a-contract" {
		t.Fatalf("expected higher priority template on tie, got %q", got.TemplateID)
	}

	// Category-restricted templates never match other categories.
	if got := recent.Classify(content("律师费"), nil); got.TemplateID != "" {
		t.Fatalf("expected no template for mismatched category, got %q", got.TemplateID)
	}

	sameTime := staticTemplates{
		{ID: "z", Keywords: []string{"合同"}, Text: "z", Updated: older},
		{ID: "m", Keywords: []string{"合同"}, Text: "m", Updated: older},
	}
	if got := newClassifier(t, config.TieBreakRecent, sameTime).Classify(content("合同"), nil); got.TemplateID != "m" {
		t.Fatalf("expected lowest id on full tie, got %q", got.TemplateID)
	}
}

func TestInactiveTemplateNeverSelected(t *testing.T) {
	off := false
	tpls := staticTemplates{
		{ID: "a-dispute", Keywords: []string{"合同", "纠纷"}, Text: "a", Active: &off},
		{ID: "b-contract", Keywords: []string{"合同"}, Text: "b"},
	}
	c := newClassifier(t, config.TieBreakRecent, tpls)
	if got := c.Classify(content("合同纠纷"), nil); got.TemplateID != "b-contract" {
		t.Fatalf("expected disabled template skipped, got %q", got.TemplateID)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	tpls := staticTemplates{
		{ID: "x", Keywords: []string{"咨询"}, Text: "x", Updated: time.Unix(100, 0)},
		{ID: "y", Keywords: []string{"咨询"}, Text: "y", Updated: time.Unix(100, 0)},
	}
	c := newClassifier(t, config.TieBreakRecent, tpls)
	first := c.Classify(content("法律咨询一下"), []string{"法律咨询"})
	for i := 0; i < 20; i++ {
		if got := c.Classify(content("法律咨询一下"), []string{"法律咨询"}); !reflect.DeepEqual(got, first) {
			t.Fatalf("classification changed between runs: %#v vs %#v", got, first)
		}
	}
}

func TestIsSpam(t *testing.T) {
	c := newClassifier(t, config.TieBreakRecent, nil)
	if !c.IsSpam("点击 https://example.com 领取") {
		t.Fatal("expected url to be spam")
	}
	if c.IsSpam("请问律师费多少") {
		t.Fatal("expected legal question not to be spam")
	}
	if !classifier.ContainsFold("Hello WORLD", "world") {
		t.Fatal("expected ContainsFold to ignore case")
	}
}
