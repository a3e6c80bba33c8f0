// Package classifier maps fetched content to a reply category, priority and
// optional template using an ordered rule table.
package classifier

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"murmur/internal/config"
	"murmur/internal/platform"
	"murmur/internal/templates"
)

// Category is the reply category assigned to content.
type Category string

const (
	LegalConsultation Category = "LegalConsultation"
	Gratitude         Category = "Gratitude"
	Challenge         Category = "Challenge"
	Spam              Category = "Spam"
	Other             Category = "Other"
)

// Item is classified content ready for the dispatcher.
type Item struct {
	platform.ContentItem
	Category        Category
	MatchedKeywords []string
	TemplateID      string
	Priority        int
	Mode            string
}

// Keyword returns the first matched keyword, used for template substitution.
func (i Item) Keyword() string {
	if len(i.MatchedKeywords) == 0 {
		return ""
	}
	return i.MatchedKeywords[0]
}

// TemplateSource supplies the active template catalog.
type TemplateSource interface {
	Snapshot() []templates.Template
}

type rule struct {
	category Category
	keywords []string
	folded   []string
	patterns []*regexp.Regexp
	priority int
	mode     string
}

// Classifier is safe for concurrent use. It holds no mutable state; the
// template catalog is read through a snapshot on every call.
type Classifier struct {
	rules     []rule
	spam      []rule
	tieBreak  string
	templates TemplateSource
}

// New compiles the configured rule table.
func New(cfg config.Classifier, source TemplateSource) (*Classifier, error) {
	c := &Classifier{tieBreak: cfg.TemplateTieBreak, templates: source}
	if c.tieBreak == "" {
		c.tieBreak = config.TieBreakRecent
	}
	for i, raw := range cfg.Rules {
		r := rule{
			category: Category(raw.Category),
			keywords: raw.Keywords,
			priority: raw.Priority,
			mode:     raw.Mode,
		}
		for _, kw := range raw.Keywords {
			r.folded = append(r.folded, fold(kw))
		}
		for _, pattern := range raw.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("classifier rule %d: %w", i, err)
			}
			r.patterns = append(r.patterns, re)
		}
		c.rules = append(c.rules, r)
		if r.category == Spam {
			c.spam = append(c.spam, r)
		}
	}
	return c, nil
}

// Classify assigns a category to the item. The first rule that matches wins;
// content matching no rule is Other with the lowest priority.
func (c *Classifier) Classify(content platform.ContentItem, taskKeywords []string) Item {
	text := fold(content.Body)
	item := Item{ContentItem: content}

	var taskMatches []string
	for _, kw := range taskKeywords {
		if kw != "" && strings.Contains(text, fold(kw)) {
			taskMatches = appendUnique(taskMatches, kw)
		}
	}

	matched := -1
	for i := range c.rules {
		if c.rules[i].matches(content.Body, text) {
			matched = i
			break
		}
	}
	if matched < 0 {
		item.Category = Other
		item.Priority = 0
		item.Mode = config.ModeAI
		item.MatchedKeywords = taskMatches
		item.TemplateID = c.selectTemplate(item)
		return item
	}

	r := c.rules[matched]
	item.Category = r.category
	item.Mode = r.mode
	item.Priority = r.priority + len(taskMatches)
	item.MatchedKeywords = taskMatches
	for i, kw := range r.keywords {
		if strings.Contains(text, r.folded[i]) {
			item.MatchedKeywords = appendUnique(item.MatchedKeywords, kw)
		}
	}
	if item.Category != Spam {
		item.TemplateID = c.selectTemplate(item)
	}
	return item
}

// IsSpam reports whether text matches any Spam rule.
func (c *Classifier) IsSpam(text string) bool {
	folded := fold(text)
	for i := range c.spam {
		if c.spam[i].matches(text, folded) {
			return true
		}
	}
	return false
}

func (r *rule) matches(raw, folded string) bool {
	for _, kw := range r.folded {
		if kw != "" && strings.Contains(folded, kw) {
			return true
		}
	}
	for _, re := range r.patterns {
		if re.MatchString(raw) {
			return true
		}
	}
	return false
}

type candidate struct {
	tpl     templates.Template
	overlap int
}

// selectTemplate picks the template with the largest keyword overlap. Ties
// go to the configured tie-break and finally to the lowest ID.
func (c *Classifier) selectTemplate(item Item) string {
	if c.templates == nil || len(item.MatchedKeywords) == 0 {
		return ""
	}
	matched := make(map[string]struct{}, len(item.MatchedKeywords))
	for _, kw := range item.MatchedKeywords {
		matched[fold(kw)] = struct{}{}
	}

	var candidates []candidate
	for _, tpl := range c.templates.Snapshot() {
		if !tpl.Enabled() {
			continue
		}
		if tpl.Category != "" && Category(tpl.Category) != item.Category {
			continue
		}
		overlap := 0
		for _, kw := range tpl.Keywords {
			if _, ok := matched[fold(kw)]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, candidate{tpl: tpl, overlap: overlap})
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if c.tieBreak == config.TieBreakPriority && a.tpl.Priority != b.tpl.Priority {
			return a.tpl.Priority > b.tpl.Priority
		}
		if !a.tpl.UpdatedAt().Equal(b.tpl.UpdatedAt()) {
			return a.tpl.UpdatedAt().After(b.tpl.UpdatedAt())
		}
		return a.tpl.ID < b.tpl.ID
	})
	return candidates[0].tpl.ID
}

// ContainsFold reports whether keyword occurs in text under Unicode case
// folding.
func ContainsFold(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(fold(text), fold(keyword))
}

// fold creates a Caser per call since casers carry state.
func fold(s string) string {
	return cases.Fold().String(s)
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}
