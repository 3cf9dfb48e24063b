package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"sentinel/internal/model"
	"sentinel/internal/sentinel"
)

const (
	historyLimit = 10
	searchLimit  = 10
)

type Service interface {
	Refresh(ctx context.Context) (sentinel.RefreshReport, error)
	Analyze(ctx context.Context) (sentinel.AnalyzeReport, error)
	Stats(ctx context.Context) (sentinel.Stats, error)
	History(ctx context.Context, limit int) ([]model.AlertRecord, error)
	Feeds(ctx context.Context) ([]model.Feed, error)
	AddFeed(ctx context.Context, name, rawURL string) (model.Feed, error)
	ToggleFeed(ctx context.Context, id string) (model.Feed, error)
	RemoveFeed(ctx context.Context, id string) error
	Triggers(ctx context.Context) ([]model.AlertTrigger, error)
	AddTrigger(ctx context.Context, spec model.TriggerSpec) (model.AlertTrigger, error)
	RemoveTrigger(ctx context.Context, id string) error
	SetTriggerEnabled(ctx context.Context, id string, enabled bool) (model.AlertTrigger, error)
	Search(ctx context.Context, q sentinel.Query) ([]model.Article, error)
	Ask(ctx context.Context, question string) (string, error)
}

// RegisterViews binds every command to the service.
func RegisterViews(b *Bot, svc Service) {
	b.RegisterCmdView("start", ViewCmdHelp())
	b.RegisterCmdView("help", ViewCmdHelp())
	b.RegisterCmdView("refresh", ViewCmdRefresh(svc))
	b.RegisterCmdView("analyze", ViewCmdAnalyze(svc))
	b.RegisterCmdView("stats", ViewCmdStats(svc))
	b.RegisterCmdView("alerts", ViewCmdAlerts(svc))
	b.RegisterCmdView("feeds", ViewCmdFeeds(svc))
	b.RegisterCmdView("addfeed", ViewCmdAddFeed(svc))
	b.RegisterCmdView("togglefeed", ViewCmdToggleFeed(svc))
	b.RegisterCmdView("removefeed", ViewCmdRemoveFeed(svc))
	b.RegisterCmdView("triggers", ViewCmdTriggers(svc))
	b.RegisterCmdView("addtrigger", ViewCmdAddTrigger(svc))
	b.RegisterCmdView("deltrigger", ViewCmdDeleteTrigger(svc))
	b.RegisterCmdView("toggletrigger", ViewCmdToggleTrigger(svc))
	b.RegisterCmdView("search", ViewCmdSearch(svc))
	b.RegisterCmdView("ask", ViewCmdAsk(svc))
}

const helpText = `Sentinel commands:
/refresh - poll active feeds
/analyze - enrich the next batch
/stats - dashboard figures
/alerts - recent alerts
/feeds - list feeds
/addfeed <url> <name> - register a feed
/togglefeed <id> - enable or disable a feed
/removefeed <id> - delete a feed
/triggers - list alert triggers
/addtrigger keyword=<word> category=<Category> threshold=<-1..1> channel=<email|whatsapp> - create a trigger
/deltrigger <id> - delete a trigger
/toggletrigger <id> - enable or disable a trigger
/search [category] <term> - find articles
/ask <question> - ask the analyst about recent news`

func ViewCmdHelp() ViewFunc {
	return func(_ context.Context, sender Sender, update tgbotapi.Update) error {
		return reply(sender, update, helpText)
	}
}

func ViewCmdRefresh(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		report, err := svc.Refresh(ctx)
		if err != nil {
			return err
		}

		return reply(sender, update, report.Status)
	}
}

func ViewCmdAnalyze(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		report, err := svc.Analyze(ctx)
		if err != nil {
			return err
		}

		return reply(sender, update, report.Status)
	}
}

func ViewCmdStats(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		stats, err := svc.Stats(ctx)
		if err != nil {
			return err
		}

		return reply(sender, update, FormatStats(stats))
	}
}

func FormatStats(stats sentinel.Stats) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Articles: %d (%d analyzed, %d pending)\n", stats.Total, stats.Processed, stats.Pending)
	if stats.Processed > 0 {
		fmt.Fprintf(&sb, "Average sentiment: %.2f\n", stats.AverageSentiment)
	} else {
		sb.WriteString("Average sentiment: N/A\n")
	}
	fmt.Fprintf(&sb, "Positive %d / Neutral %d / Negative %d\n", stats.Positive, stats.Neutral, stats.Negative)
	fmt.Fprintf(&sb, "High intensity: %d", stats.HighIntensity)

	categories := lo.Keys(stats.Categories)
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	for _, c := range categories {
		fmt.Fprintf(&sb, "\n%s: %d", c, stats.Categories[c])
	}

	return sb.String()
}

func ViewCmdAlerts(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		history, err := svc.History(ctx, historyLimit)
		if err != nil {
			return err
		}

		if len(history) == 0 {
			return reply(sender, update, "No alerts fired yet.")
		}

		lines := lo.Map(history, func(r model.AlertRecord, _ int) string {
			return fmt.Sprintf("*%s* \\[%s\\]\n%s",
				EscapeForMarkdown(r.Timestamp.Format("2006-01-02 15:04")),
				EscapeForMarkdown(string(r.Channel)),
				EscapeForMarkdown(r.Message+": "+r.ArticleTitle),
			)
		})

		msg := tgbotapi.NewMessage(update.Message.Chat.ID, strings.Join(lines, "\n\n"))
		msg.ParseMode = tgbotapi.ModeMarkdownV2

		_, err = sender.Send(msg)
		return err
	}
}

func ViewCmdFeeds(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		feeds, err := svc.Feeds(ctx)
		if err != nil {
			return err
		}

		if len(feeds) == 0 {
			return reply(sender, update, "No feeds registered.")
		}

		lines := lo.Map(feeds, func(f model.Feed, _ int) string {
			state := lo.Ternary(f.Active, "on", "off")
			last := "never"
			if f.LastFetch != nil {
				last = f.LastFetch.Format("2006-01-02 15:04")
			}
			return fmt.Sprintf("%s [%s] %s (last fetch: %s)", f.ID, state, f.Name, last)
		})

		return reply(sender, update, strings.Join(lines, "\n"))
	}
}

func ViewCmdAddFeed(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		url, name, _ := strings.Cut(strings.TrimSpace(update.Message.CommandArguments()), " ")

		feed, err := svc.AddFeed(ctx, name, url)
		if err != nil {
			return reply(sender, update, "Cannot add feed: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Feed %s added as %s.", feed.Name, feed.ID))
	}
}

func ViewCmdToggleFeed(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		feed, err := svc.ToggleFeed(ctx, strings.TrimSpace(update.Message.CommandArguments()))
		if err != nil {
			return reply(sender, update, "Cannot toggle feed: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Feed %s is now %s.", feed.Name, lo.Ternary(feed.Active, "active", "inactive")))
	}
}

func ViewCmdRemoveFeed(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		id := strings.TrimSpace(update.Message.CommandArguments())
		if err := svc.RemoveFeed(ctx, id); err != nil {
			return reply(sender, update, "Cannot remove feed: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Feed %s removed.", id))
	}
}

func ViewCmdTriggers(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		triggers, err := svc.Triggers(ctx)
		if err != nil {
			return err
		}

		if len(triggers) == 0 {
			return reply(sender, update, "No alert triggers.")
		}

		lines := lo.Map(triggers, func(t model.AlertTrigger, _ int) string {
			return fmt.Sprintf("%s [%s] %s -> %s", t.ID, lo.Ternary(t.Enabled, "on", "off"), describeTrigger(t), t.Channel)
		})

		return reply(sender, update, strings.Join(lines, "\n"))
	}
}

func describeTrigger(t model.AlertTrigger) string {
	var parts []string
	if t.Keyword != "" {
		parts = append(parts, fmt.Sprintf("keyword %q", t.Keyword))
	}
	if t.Category != "" {
		parts = append(parts, "category "+string(t.Category))
	}
	if t.SentimentThreshold != nil {
		parts = append(parts, fmt.Sprintf("sentiment %+.2f", *t.SentimentThreshold))
	}

	return strings.Join(parts, " or ")
}

// ParseTriggerSpec reads key=value pairs. The channel defaults to email.
func ParseTriggerSpec(args string) (model.TriggerSpec, error) {
	spec := model.TriggerSpec{Channel: string(model.ChannelEmail)}

	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			return model.TriggerSpec{}, fmt.Errorf("expected key=value, got %q", field)
		}

		switch strings.ToLower(key) {
		case "keyword":
			spec.Keyword = value
		case "category":
			spec.Category = value
		case "channel":
			spec.Channel = strings.ToLower(value)
		case "threshold":
			threshold, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return model.TriggerSpec{}, fmt.Errorf("threshold %q is not a number", value)
			}
			spec.SentimentThreshold = &threshold
		default:
			return model.TriggerSpec{}, fmt.Errorf("unknown field %q", key)
		}
	}

	return spec, nil
}

func ViewCmdAddTrigger(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		spec, err := ParseTriggerSpec(update.Message.CommandArguments())
		if err != nil {
			return reply(sender, update, "Cannot add trigger: "+err.Error())
		}

		trigger, err := svc.AddTrigger(ctx, spec)
		if err != nil {
			return reply(sender, update, "Cannot add trigger: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Trigger %s added: %s -> %s.", trigger.ID, describeTrigger(trigger), trigger.Channel))
	}
}

func ViewCmdDeleteTrigger(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		id := strings.TrimSpace(update.Message.CommandArguments())
		if err := svc.RemoveTrigger(ctx, id); err != nil {
			return reply(sender, update, "Cannot delete trigger: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Trigger %s deleted.", id))
	}
}

func ViewCmdToggleTrigger(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		id := strings.TrimSpace(update.Message.CommandArguments())

		triggers, err := svc.Triggers(ctx)
		if err != nil {
			return err
		}

		current, ok := lo.Find(triggers, func(t model.AlertTrigger) bool { return t.ID == id })
		if !ok {
			return reply(sender, update, fmt.Sprintf("Cannot toggle trigger: %s: %v", id, sentinel.ErrTriggerNotFound))
		}

		trigger, err := svc.SetTriggerEnabled(ctx, id, !current.Enabled)
		if err != nil {
			return reply(sender, update, "Cannot toggle trigger: "+err.Error())
		}

		return reply(sender, update, fmt.Sprintf("Trigger %s is now %s.", trigger.ID, lo.Ternary(trigger.Enabled, "enabled", "disabled")))
	}
}

func ViewCmdAsk(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		answer, err := svc.Ask(ctx, update.Message.CommandArguments())
		switch {
		case errors.Is(err, sentinel.ErrEmptyQuestion):
			return reply(sender, update, "Usage: /ask <question>")
		case errors.Is(err, sentinel.ErrNoAnalyst):
			return reply(sender, update, "The analyst is not configured.")
		case err != nil:
			return err
		}

		return reply(sender, update, answer)
	}
}

func ViewCmdSearch(svc Service) ViewFunc {
	return func(ctx context.Context, sender Sender, update tgbotapi.Update) error {
		args := strings.Fields(update.Message.CommandArguments())

		var q sentinel.Query
		if len(args) > 0 {
			if c, err := model.ParseCategory(args[0]); err == nil {
				q.Category = c
				args = args[1:]
			}
		}
		q.Term = strings.Join(args, " ")

		articles, err := svc.Search(ctx, q)
		if err != nil {
			return err
		}

		if len(articles) == 0 {
			return reply(sender, update, "No intelligence found for the current filters.")
		}

		lines := lo.Map(lo.Slice(articles, 0, searchLimit), func(a model.Article, _ int) string {
			return fmt.Sprintf("%s (%s)\n%s", a.Title, a.Source, a.Link)
		})

		return reply(sender, update, strings.Join(lines, "\n\n"))
	}
}

func reply(sender Sender, update tgbotapi.Update, text string) error {
	_, err := sender.Send(tgbotapi.NewMessage(update.Message.Chat.ID, text))
	return err
}
