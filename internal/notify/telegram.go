package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/fortuna/moneta/internal/game"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts one summary message per run to a chat
type Telegram struct {
	bot    sender
	chatID int64
	logger *logrus.Logger
}

// NewTelegram connects to the bot API and verifies the token
func NewTelegram(token string, chatID int64, logger *logrus.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	logger.WithField("chat_id", chatID).Infof("✓ Telegram notifier authorized as %s", bot.Self.UserName)
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// PublishObservation does nothing; only run summaries are sent
func (t *Telegram) PublishObservation(ctx context.Context, runID string, obs *game.Observation) error {
	return nil
}

// PublishRun sends the run summary
func (t *Telegram) PublishRun(ctx context.Context, report *game.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, FormatRunSummary(report))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("sending run summary: %w", err)
	}
	return nil
}

// FormatRunSummary renders a plain-text report: counters, then one line per game
func FormatRunSummary(report *game.RunReport) string {
	var b strings.Builder

	status := "OK"
	if report.Failed() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "NBA moneyline run %s: %s\n", report.Date, status)
	if report.DryRun {
		b.WriteString("(dry run, nothing persisted)\n")
	}
	fmt.Fprintf(&b, "Succeeded %d/%d, persisted %d", report.Succeeded, report.Attempted, report.Persisted)
	if report.SkippedFinal > 0 {
		fmt.Fprintf(&b, ", %d final skipped", report.SkippedFinal)
	}
	if report.Unrecoverable > 0 {
		fmt.Fprintf(&b, ", %d without URL", report.Unrecoverable)
	}
	b.WriteString("\n")

	for _, obs := range report.Results {
		fmt.Fprintf(&b, "\n%s @ %s: %s", obs.Game.Away, obs.Game.Home, obs.Status())
		if obs.AwayPrice != nil && obs.HomePrice != nil {
			fmt.Fprintf(&b, " (%.0f¢ / %.0f¢)", *obs.AwayPrice*100, *obs.HomePrice*100)
		}
	}

	return b.String()
}
