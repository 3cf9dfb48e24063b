package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/logger"
	"sentinel/internal/model"
	"sentinel/internal/sentinel"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	updates chan tgbotapi.Update
	stopped bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 4)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}

	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

func command(chatID int64, text string) tgbotapi.Update {
	cmd := text
	for i, r := range text {
		if r == ' ' {
			cmd = text[:i]
			break
		}
	}

	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

type fakeService struct {
	added     [2]string
	toggled   string
	removed   string
	query     sentinel.Query
	refreshed int
	history   []model.AlertRecord
	triggers  []model.AlertTrigger
	spec      model.TriggerSpec
	question  string
	err       error
}

func (s *fakeService) Refresh(context.Context) (sentinel.RefreshReport, error) {
	s.refreshed++
	return sentinel.RefreshReport{Status: "Polled 1 feeds. Found 2 items, 2 new."}, s.err
}

func (s *fakeService) Analyze(context.Context) (sentinel.AnalyzeReport, error) {
	return sentinel.AnalyzeReport{Status: sentinel.StatusAllDone}, s.err
}

func (s *fakeService) Stats(context.Context) (sentinel.Stats, error) {
	return sentinel.Stats{Total: 3, Processed: 2, Pending: 1, AverageSentiment: -0.25,
		Categories: map[model.Category]int{model.CategoryTech: 1, model.CategoryFinance: 1}}, s.err
}

func (s *fakeService) History(context.Context, int) ([]model.AlertRecord, error) {
	return s.history, s.err
}

func (s *fakeService) Feeds(context.Context) ([]model.Feed, error) {
	return sentinel.DefaultFeeds()[:1], s.err
}

func (s *fakeService) AddFeed(_ context.Context, name, rawURL string) (model.Feed, error) {
	s.added = [2]string{name, rawURL}
	if rawURL == "" {
		return model.Feed{}, sentinel.ErrInvalidFeed
	}
	return model.Feed{ID: "f1", Name: name, URL: rawURL, Active: true}, nil
}

func (s *fakeService) ToggleFeed(_ context.Context, id string) (model.Feed, error) {
	s.toggled = id
	return model.Feed{ID: id, Name: "BBC", Active: false}, nil
}

func (s *fakeService) RemoveFeed(_ context.Context, id string) error {
	if id != "3" {
		return fmt.Errorf("%s: %w", id, sentinel.ErrFeedNotFound)
	}
	s.removed = id
	return nil
}

func (s *fakeService) Triggers(context.Context) ([]model.AlertTrigger, error) {
	return s.triggers, s.err
}

func (s *fakeService) AddTrigger(_ context.Context, spec model.TriggerSpec) (model.AlertTrigger, error) {
	s.spec = spec
	trigger, err := model.NewTrigger(fmt.Sprintf("t%d", len(s.triggers)+1), spec)
	if err != nil {
		return model.AlertTrigger{}, err
	}
	s.triggers = append(s.triggers, trigger)
	return trigger, nil
}

func (s *fakeService) RemoveTrigger(_ context.Context, id string) error {
	for i, t := range s.triggers {
		if t.ID == id {
			s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, sentinel.ErrTriggerNotFound)
}

func (s *fakeService) SetTriggerEnabled(_ context.Context, id string, enabled bool) (model.AlertTrigger, error) {
	for i := range s.triggers {
		if s.triggers[i].ID == id {
			s.triggers[i].Enabled = enabled
			return s.triggers[i], nil
		}
	}
	return model.AlertTrigger{}, fmt.Errorf("%s: %w", id, sentinel.ErrTriggerNotFound)
}

func (s *fakeService) Ask(_ context.Context, question string) (string, error) {
	s.question = question
	if question == "" {
		return "", sentinel.ErrEmptyQuestion
	}
	return "Markets are calm.", s.err
}

func (s *fakeService) Search(_ context.Context, q sentinel.Query) ([]model.Article, error) {
	s.query = q
	return nil, s.err
}

func newTestBot(svc Service, allowed int64) (*Bot, *fakeAPI) {
	api := newFakeAPI()
	b := New(api, allowed, logger.Discard())
	RegisterViews(b, svc)
	return b, api
}

func TestCommandsReplyWithServiceStatus(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(7, "/refresh"))
	b.handleUpdate(context.Background(), command(7, "/analyze"))

	assert.Equal(t, []string{"Polled 1 feeds. Found 2 items, 2 new.", sentinel.StatusAllDone}, api.texts())
	assert.Equal(t, int64(7), api.sent[0].ChatID)
}

func TestViewErrorSendsInternalError(t *testing.T) {
	svc := &fakeService{err: errors.New("db down")}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(7, "/stats"))

	assert.Equal(t, []string{"Internal error"}, api.texts())
}

func TestUnknownChatAndPlainTextIgnored(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 42)

	b.handleUpdate(context.Background(), command(7, "/refresh"))
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 42}}})
	b.handleUpdate(context.Background(), tgbotapi.Update{})

	assert.Empty(t, api.texts())
	assert.Zero(t, svc.refreshed)

	b.handleUpdate(context.Background(), command(42, "/refresh"))
	assert.Equal(t, 1, svc.refreshed)
}

func TestPanicInViewRecovered(t *testing.T) {
	b, _ := newTestBot(&fakeService{}, 0)
	b.RegisterCmdView("boom", func(context.Context, Sender, tgbotapi.Update) error { panic("boom") })

	assert.NotPanics(t, func() { b.handleUpdate(context.Background(), command(1, "/boom")) })
}

func TestAddAndToggleFeedArguments(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/addfeed https://example.com/rss Example News"))
	assert.Equal(t, [2]string{"Example News", "https://example.com/rss"}, svc.added)

	b.handleUpdate(context.Background(), command(1, "/addfeed"))
	b.handleUpdate(context.Background(), command(1, "/togglefeed 3"))
	assert.Equal(t, "3", svc.toggled)

	texts := api.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "Feed Example News added as f1.", texts[0])
	assert.Contains(t, texts[1], "Cannot add feed")
	assert.Equal(t, "Feed BBC is now inactive.", texts[2])
}

func TestSearchParsesCategory(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/search Tech chip shortage"))
	assert.Equal(t, sentinel.Query{Category: model.CategoryTech, Term: "chip shortage"}, svc.query)

	b.handleUpdate(context.Background(), command(1, "/search tech"))
	assert.Equal(t, sentinel.Query{Term: "tech"}, svc.query)

	assert.Equal(t, "No intelligence found for the current filters.", api.texts()[0])
}

func TestAlertsUseMarkdown(t *testing.T) {
	svc := &fakeService{history: []model.AlertRecord{{
		Timestamp:    time.Date(2025, time.March, 2, 10, 30, 0, 0, time.UTC),
		ArticleTitle: "Crypto Crashes Again",
		Channel:      model.ChannelEmail,
		Message:      "CRITICAL ALERT: Intelligence hit for [crypto] in Wire",
	}}}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/alerts"))

	require.Len(t, api.sent, 1)
	assert.Equal(t, tgbotapi.ModeMarkdownV2, api.sent[0].ParseMode)
	assert.Contains(t, api.sent[0].Text, "\\[crypto\\] in Wire: Crypto Crashes Again")
	assert.Contains(t, api.sent[0].Text, "2025\\-03\\-02 10:30")
}

func TestFormatStats(t *testing.T) {
	text := FormatStats(sentinel.Stats{Total: 3, Processed: 2, Pending: 1, AverageSentiment: -0.25,
		Categories: map[model.Category]int{model.CategoryTech: 1, model.CategoryFinance: 1}})

	assert.Contains(t, text, "Articles: 3 (2 analyzed, 1 pending)")
	assert.Contains(t, text, "Average sentiment: -0.25")
	assert.Contains(t, text, "Finance: 1\nTech: 1")

	assert.Contains(t, FormatStats(sentinel.Stats{}), "Average sentiment: N/A")
}

func TestEscapeForMarkdown(t *testing.T) {
	assert.Equal(t, "a\\.b\\-c\\!", EscapeForMarkdown("a.b-c!"))
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	api.updates <- command(1, "/help")

	require.Eventually(t, func() bool { return len(api.texts()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, api.stopped)
}

func TestTriggerCommands(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/addtrigger keyword=crypto threshold=-0.5 channel=WhatsApp"))
	assert.Equal(t, model.TriggerSpec{Keyword: "crypto", SentimentThreshold: ptr(-0.5), Channel: "whatsapp"}, svc.spec)

	b.handleUpdate(context.Background(), command(1, "/addtrigger category=Finance"))
	b.handleUpdate(context.Background(), command(1, "/addtrigger channel=email"))
	b.handleUpdate(context.Background(), command(1, "/addtrigger threshold=low"))
	b.handleUpdate(context.Background(), command(1, "/addtrigger category=finance"))
	b.handleUpdate(context.Background(), command(1, "/triggers"))
	b.handleUpdate(context.Background(), command(1, "/toggletrigger t1"))
	b.handleUpdate(context.Background(), command(1, "/toggletrigger t9"))
	b.handleUpdate(context.Background(), command(1, "/deltrigger t2"))
	b.handleUpdate(context.Background(), command(1, "/deltrigger t2"))

	texts := api.texts()
	require.Len(t, texts, 10)
	assert.Equal(t, `Trigger t1 added: keyword "crypto" or sentiment -0.50 -> whatsapp.`, texts[0])
	assert.Equal(t, "Trigger t2 added: category Finance -> email.", texts[1])
	assert.Equal(t, "Cannot add trigger: "+model.ErrInertTrigger.Error(), texts[2])
	assert.Equal(t, `Cannot add trigger: threshold "low" is not a number`, texts[3])
	assert.Contains(t, texts[4], "Cannot add trigger: unknown category")
	assert.Equal(t, "t1 [on] keyword \"crypto\" or sentiment -0.50 -> whatsapp\nt2 [on] category Finance -> email", texts[5])
	assert.Equal(t, "Trigger t1 is now disabled.", texts[6])
	assert.Equal(t, "Cannot toggle trigger: t9: trigger not found", texts[7])
	assert.Equal(t, "Trigger t2 deleted.", texts[8])
	assert.Equal(t, "Cannot delete trigger: t2: trigger not found", texts[9])

	require.Len(t, svc.triggers, 1)
	assert.False(t, svc.triggers[0].Enabled)
}

func TestParseTriggerSpec(t *testing.T) {
	spec, err := ParseTriggerSpec("")
	require.NoError(t, err)
	assert.Equal(t, model.TriggerSpec{Channel: "email"}, spec)

	_, err = ParseTriggerSpec("keyword")
	assert.ErrorContains(t, err, "expected key=value")

	_, err = ParseTriggerSpec("color=red")
	assert.ErrorContains(t, err, `unknown field "color"`)
}

func TestRemoveFeedCommand(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/removefeed 3"))
	b.handleUpdate(context.Background(), command(1, "/removefeed 8"))

	assert.Equal(t, "3", svc.removed)
	assert.Equal(t, []string{"Feed 3 removed.", "Cannot remove feed: 8: feed not found"}, api.texts())
}

func TestAskCommand(t *testing.T) {
	svc := &fakeService{}
	b, api := newTestBot(svc, 0)

	b.handleUpdate(context.Background(), command(1, "/ask what moved markets?"))
	b.handleUpdate(context.Background(), command(1, "/ask"))

	assert.Equal(t, "what moved markets?", svc.question)
	assert.Equal(t, []string{"Markets are calm.", "Usage: /ask <question>"}, api.texts())
}

func ptr(v float64) *float64 {
	return &v
}
