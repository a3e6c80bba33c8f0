package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"murmur/internal/classifier"
	"murmur/internal/config"
	"murmur/internal/dispatch"
	"murmur/internal/ratelimit"
	"murmur/internal/services"
	"murmur/internal/session"
	"murmur/internal/store"
	"murmur/internal/templates"
	"murmur/internal/testsupport"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	cfg      *config.Config
	store    *store.Store
	platform *testsupport.FakePlatform
	notifier *testsupport.RecordingNotifier
	clock    *clock
	disp     *dispatch.Dispatcher
}

func newHarness(t *testing.T, composer *testsupport.FakeComposer, cfgOpts []testsupport.ConfigOption, opts ...dispatch.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, cfgOpts...)
	testsupport.WriteTemplates(t, cfg.Paths.TemplatesFile, "")
	st := testsupport.MustOpenStore(t, cfg)
	catalog, err := templates.Load(cfg.Paths.TemplatesFile, nil)
	if err != nil {
		t.Fatalf("templates.Load: %v", err)
	}
	fake := testsupport.NewFakePlatform()
	h := &harness{
		cfg:      cfg,
		store:    st,
		platform: fake,
		notifier: &testsupport.RecordingNotifier{},
		clock:    &clock{now: time.Now().UTC().Truncate(time.Second)},
	}
	deps := dispatch.Deps{
		Store:     st,
		Guard:     session.NewGuard(fake, nil),
		Sender:    fake,
		Templates: catalog,
		Limiter:   ratelimit.New(ratelimit.KindReply, st, cfg.AccountCap),
		Notifier:  h.notifier,
	}
	if composer != nil {
		deps.Composer = composer
	}
	opts = append([]dispatch.Option{dispatch.WithClock(h.clock.Now)}, opts...)
	h.disp = dispatch.New(cfg, deps, opts...)
	return h
}

func legalItem(account, sourceID string, priority int) classifier.Item {
	return classifier.Item{
		ContentItem:     testsupport.Item(account, sourceID, "想咨询一下合同纠纷", time.Now()),
		Category:        classifier.LegalConsultation,
		MatchedKeywords: []string{"咨询"},
		TemplateID:      "legal-basic",
		Priority:        priority,
		Mode:            config.ModeTemplate,
	}
}

func aiItem(account, sourceID string) classifier.Item {
	return classifier.Item{
		ContentItem: testsupport.Item(account, sourceID, "你说的不对吧", time.Now()),
		Category:    classifier.Challenge,
		Priority:    20,
		Mode:        config.ModeAI,
	}
}

func (h *harness) submit(t *testing.T, item classifier.Item) *store.ReplyRecord {
	t.Helper()
	rec, err := h.disp.Submit(context.Background(), item)
	if err != nil {
		t.Fatalf("Submit(%s): %v", item.SourceID, err)
	}
	return rec
}

func (h *harness) reply(t *testing.T, id string) *store.ReplyRecord {
	t.Helper()
	rec, err := h.store.GetReply(context.Background(), id)
	if err != nil || rec == nil {
		t.Fatalf("GetReply(%s): %v %v", id, rec, err)
	}
	return rec
}

func TestDrainStopsAtHourlyCap(t *testing.T) {
	h := newHarness(t, nil, []testsupport.ConfigOption{testsupport.WithHourlyCap(10)})
	ctx := context.Background()

	urgent := make(map[string]bool)
	for i := 0; i < 15; i++ {
		priority := 10
		if i%3 == 0 {
			priority = 50
		}
		rec := h.submit(t, legalItem("acct-a", fmt.Sprintf("c-%02d", i), priority))
		if priority == 50 {
			urgent[rec.SourceID] = true
		}
	}

	summary, err := h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Due != 15 || summary.Sent != 10 || summary.Deferred != 5 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	stats, err := h.store.ReplyStats(ctx)
	if err != nil {
		t.Fatalf("ReplyStats: %v", err)
	}
	if stats[store.ReplySent] != 10 || stats[store.ReplyPending] != 5 {
		t.Fatalf("expected 10 sent and 5 pending, got %v", stats)
	}
	sent := h.platform.Sent()
	if len(sent) != 10 {
		t.Fatalf("expected 10 platform sends, got %d", len(sent))
	}
	for i := 0; i < len(urgent); i++ {
		if !urgent[sent[i].Target.SourceID] {
			t.Fatalf("expected high priority replies first, send %d was %s", i, sent[i].Target.SourceID)
		}
	}

	again, err := h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain: %v", err)
	}
	if again.Sent != 0 || again.Deferred != 5 {
		t.Fatalf("expected budget still exhausted, got %+v", again)
	}
}

func TestComposerTimeoutFallsBack(t *testing.T) {
	composer := &testsupport.FakeComposer{Text: "AI reply", Delay: 2 * time.Second}
	h := newHarness(t, composer, nil, dispatch.WithComposeTimeout(50*time.Millisecond))
	rec := h.submit(t, aiItem("acct-a", "slow-1"))

	summary, err := h.disp.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Sent != 1 || summary.Fallbacks != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	got := h.reply(t, rec.ID)
	if got.Status != store.ReplySent {
		t.Fatalf("expected sent, got %s", got.Status)
	}
	if got.Text != h.cfg.Dispatch.FallbackReply || got.ComposeSource != store.ComposedFromFallback {
		t.Fatalf("expected fallback text, got %q (%s)", got.Text, got.ComposeSource)
	}
	if sent := h.platform.Sent(); len(sent) != 1 || sent[0].Text != h.cfg.Dispatch.FallbackReply {
		t.Fatalf("expected fallback delivered, got %+v", sent)
	}
}

func TestTemplateRendering(t *testing.T) {
	h := newHarness(t, nil, nil)
	rec := h.submit(t, legalItem("acct-a", "c-1", 30))

	if _, err := h.disp.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	got := h.reply(t, rec.ID)
	want := "user-c-1您好，关于咨询的问题欢迎私信详细说明。"
	if got.Text != want || got.ComposeSource != store.ComposedFromTemplate {
		t.Fatalf("expected rendered template %q, got %q (%s)", want, got.Text, got.ComposeSource)
	}
	if got.PlatformReplyID != "reply-1" || got.SentAt == nil {
		t.Fatalf("expected platform reply id and sent time, got %+v", got)
	}
}

func TestMissingTemplateUsesComposer(t *testing.T) {
	composer := &testsupport.FakeComposer{Text: "  AI 答复  "}
	h := newHarness(t, composer, nil)
	item := legalItem("acct-a", "c-1", 30)
	item.TemplateID = "retired"
	rec := h.submit(t, item)

	if _, err := h.disp.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	got := h.reply(t, rec.ID)
	if got.Text != "AI 答复" || got.ComposeSource != store.ComposedByAI {
		t.Fatalf("expected AI text, got %q (%s)", got.Text, got.ComposeSource)
	}
}

func TestSendFailuresRetryThenFail(t *testing.T) {
	composer := &testsupport.FakeComposer{Text: "AI答复"}
	h := newHarness(t, composer, []testsupport.ConfigOption{testsupport.WithMaxAttempts(2)})
	ctx := context.Background()
	sendErr := services.Wrap(services.ErrSendFailed, "fake", "send", "rejected", nil)
	h.platform.FailNextSends(sendErr, sendErr)
	rec := h.submit(t, aiItem("acct-a", "r-1"))

	summary, err := h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Retrying != 1 {
		t.Fatalf("expected retry scheduled, got %+v", summary)
	}
	got := h.reply(t, rec.ID)
	if got.Status != store.ReplyPending || got.Attempts != 1 || got.LastError == "" {
		t.Fatalf("unexpected record after first failure: %+v", got)
	}
	if !got.NextAttemptAt.After(h.clock.Now()) {
		t.Fatalf("expected backoff, next attempt %s", got.NextAttemptAt)
	}

	if summary, _ := h.disp.Drain(ctx); summary.Due != 0 {
		t.Fatalf("record must not be due during backoff, got %+v", summary)
	}

	h.clock.Advance(time.Duration(h.cfg.Dispatch.BackoffBaseSeconds+1) * time.Second)
	summary, err = h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected terminal failure, got %+v", summary)
	}
	got = h.reply(t, rec.ID)
	if got.Status != store.ReplyFailed || got.Attempts != 2 {
		t.Fatalf("expected failed after 2 attempts, got %s/%d", got.Status, got.Attempts)
	}
	if events := h.notifier.Events(); len(events) != 1 || events[0] != "reply_failed:"+rec.ID {
		t.Fatalf("expected reply failure notification, got %v", events)
	}
	if composer.Calls() != 1 {
		t.Fatalf("expected composed text reused across attempts, got %d compose calls", composer.Calls())
	}

	if _, err := h.disp.Retry(ctx, rec.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if _, err := h.disp.Retry(ctx, rec.ID); !errors.Is(err, services.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState retrying a pending record, got %v", err)
	}
	summary, err = h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Sent != 1 {
		t.Fatalf("expected retried record sent, got %+v", summary)
	}

	history, err := h.disp.History(ctx, rec.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	wantStatuses := []store.ReplyStatus{store.ReplyPending, store.ReplyPending, store.ReplyFailed, store.ReplyPending, store.ReplySent}
	if len(history) != len(wantStatuses) {
		t.Fatalf("expected %d events, got %d", len(wantStatuses), len(history))
	}
	for i, ev := range history {
		if ev.Status != wantStatuses[i] {
			t.Fatalf("event %d: expected %s, got %s", i, wantStatuses[i], ev.Status)
		}
	}
}

func TestSpamIsSkippedAndDuplicatesRejected(t *testing.T) {
	h := newHarness(t, nil, nil)
	ctx := context.Background()

	spam := classifier.Item{
		ContentItem: testsupport.Item("acct-a", "s-1", "加我微信领取福利", time.Now()),
		Category:    classifier.Spam,
		Priority:    1,
		Mode:        config.ModeTemplate,
	}
	rec := h.submit(t, spam)
	if rec.Status != store.ReplySkipped {
		t.Fatalf("expected skipped, got %s", rec.Status)
	}
	if _, err := h.disp.Submit(ctx, spam); !errors.Is(err, services.ErrDuplicateReply) {
		t.Fatalf("expected ErrDuplicateReply, got %v", err)
	}

	summary, err := h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Due != 0 || len(h.platform.Sent()) != 0 {
		t.Fatalf("skipped records must never be sent: %+v", summary)
	}
	skipped, err := h.disp.List(ctx, store.ReplySkipped)
	if err != nil || len(skipped) != 1 {
		t.Fatalf("List(skipped): %d %v", len(skipped), err)
	}
}

func TestAccountsDrainIndependently(t *testing.T) {
	h := newHarness(t, nil, []testsupport.ConfigOption{testsupport.WithHourlyCap(2)})
	h.platform.InvalidateSession("acct-b", true)
	for i := 0; i < 3; i++ {
		h.submit(t, legalItem("acct-a", fmt.Sprintf("a-%d", i), 30))
		h.submit(t, legalItem("acct-b", fmt.Sprintf("b-%d", i), 30))
		h.submit(t, legalItem("acct-c", fmt.Sprintf("c-%d", i), 30))
	}

	summary, err := h.disp.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Accounts != 3 {
		t.Fatalf("expected 3 accounts, got %d", summary.Accounts)
	}
	// acct-a and acct-c send two each; acct-b fails every send and keeps its
	// budget, so all three of its records are attempted.
	if summary.Sent != 4 || summary.Retrying != 3 || summary.Deferred != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	perAccount := make(map[string]int)
	for _, s := range h.platform.Sent() {
		perAccount[s.AccountID]++
	}
	if perAccount["acct-a"] != 2 || perAccount["acct-c"] != 2 || perAccount["acct-b"] != 0 {
		t.Fatalf("unexpected per-account sends: %v", perAccount)
	}
}

func TestBacklogDoesNotStarveOtherAccounts(t *testing.T) {
	h := newHarness(t, nil, []testsupport.ConfigOption{
		testsupport.WithHourlyCap(2),
		testsupport.WithBatchSize(5),
	})
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		h.submit(t, legalItem("acct-a", fmt.Sprintf("a-%02d", i), 50))
	}
	h.clock.Advance(time.Second)
	late := h.submit(t, legalItem("acct-b", "b-0", 10))

	summary, err := h.disp.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if summary.Accounts != 2 || summary.Due != 6 {
		t.Fatalf("expected both accounts in the pass, got %+v", summary)
	}
	if summary.Sent != 3 || summary.Deferred != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if got := h.reply(t, late.ID); got.Status != store.ReplySent {
		t.Fatalf("expected acct-b reply sent despite acct-a backlog, got %s", got.Status)
	}

	for pass := 0; pass < 2; pass++ {
		h.clock.Advance(time.Minute)
		again, err := h.disp.Drain(ctx)
		if err != nil {
			t.Fatalf("Drain pass %d: %v", pass+2, err)
		}
		if again.Sent != 0 || again.Due != 5 || again.Accounts != 1 {
			t.Fatalf("expected capped acct-a to stay deferred, got %+v", again)
		}
	}
}

func TestHistoryUnknownRecord(t *testing.T) {
	h := newHarness(t, nil, nil)
	if _, err := h.disp.History(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.disp.Retry(context.Background(), "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if h.disp.LastDrain() != nil {
		t.Fatal("expected no drain summary before the first pass")
	}
}
