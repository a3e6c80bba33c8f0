package dispatch

import (
	"context"
	"errors"
	"strings"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/services"
	"murmur/internal/services/llm"
	"murmur/internal/store"
	"murmur/internal/templates"
)

var errNoComposer = errors.New("no composer configured")

// compose picks the reply text for rec. Template mode renders the matched
// template; AI mode, or a template that no longer exists, asks the composer.
// Any composer problem falls back to the configured reply so the record is
// never failed for lack of text.
func (d *Dispatcher) compose(ctx context.Context, rec *store.ReplyRecord) (string, store.ComposeSource) {
	logger := logging.WithContext(ctx, d.logger)

	if rec.Mode == config.ModeTemplate && rec.TemplateID != "" && d.templates != nil {
		if tpl, ok := d.templates.Get(rec.TemplateID); ok {
			keyword := ""
			if len(rec.MatchedKeywords) > 0 {
				keyword = rec.MatchedKeywords[0]
			}
			text := strings.TrimSpace(templates.Render(tpl.Text, templates.Vars{
				Author:   rec.Author,
				Keyword:  keyword,
				Content:  rec.SourceText,
				Category: rec.Category,
			}))
			if text != "" {
				return llm.Truncate(text, d.maxLength), store.ComposedFromTemplate
			}
		}
		logger.Debug("template unavailable; composing with AI",
			logging.String("template_id", rec.TemplateID),
		)
	}

	text, err := d.composeAI(ctx, rec)
	if err == nil {
		return text, store.ComposedByAI
	}
	if !errors.Is(err, errNoComposer) {
		logging.WarnWithContext(logger, "composer failed; using fallback reply", "compose_fallback",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "reply sent with fallback text"),
		)
	}
	return d.fallback, store.ComposedFromFallback
}

func (d *Dispatcher) composeAI(ctx context.Context, rec *store.ReplyRecord) (string, error) {
	if d.composer == nil {
		return "", errNoComposer
	}
	cctx := ctx
	if d.composeTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d.composeTimeout)
		defer cancel()
	}
	text, err := d.composer.Compose(cctx, rec.SourceText, d.styleHint, d.maxLength)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
			err = services.Wrap(services.ErrTimeout, "dispatch", "compose", "composer deadline exceeded", err)
		}
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrComposer, "dispatch", "compose", "empty composer output", nil)
	}
	return llm.Truncate(text, d.maxLength), nil
}
