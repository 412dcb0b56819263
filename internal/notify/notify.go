// Package notify delivers validation outcomes via the Telegram Bot API.
package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ideascope/ideascope/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.Message != nil && update.Message.IsCommand() {
					c.handleCommand(update.Message)
				}
			}
		}
	}()
}

func (c *Client) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "ping":
		reply := tgbotapi.NewMessage(msg.Chat.ID, "Pong")
		c.bot.Send(reply) //nolint:errcheck
	}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendBackendOutage sends a backend outage notification.
// Call this only on the first all-sources-unavailable validation of a
// consecutive outage sequence.
func (c *Client) SendBackendOutage(outageErr error) error {
	text := fmt.Sprintf("⚠️ *Analysis backend unreachable*\n`%s`", escapeMarkdownV2(outageErr.Error()))
	return c.sendMarkdownV2(text)
}

// SendRecovery sends a recovery notification after consecutive outages.
func (c *Client) SendRecovery(failureCount int) error {
	text := fmt.Sprintf("✅ *Analysis backend recovered* after %d failed validation\\(s\\)", failureCount)
	return c.sendMarkdownV2(text)
}

// SendReport sends a report-ready summary for a completed validation.
func (c *Client) SendReport(idea string, card models.Scorecard, okCount, degradedCount, unavailableCount int) error {
	return c.sendMarkdownV2(c.formatReport(idea, card, okCount, degradedCount, unavailableCount))
}

// factorLabels maps factor identifiers to the labels shown in reports.
var factorLabels = map[models.Factor]string{
	models.FactorDemand:          "Demand",
	models.FactorPainIntensity:   "Pain intensity",
	models.FactorCompetitionGap:  "Competition gap",
	models.FactorDifferentiation: "Differentiation",
	models.FactorDistribution:    "Distribution",
}

// formatReport formats a completed validation into a Telegram
// MarkdownV2 message.
func (c *Client) formatReport(idea string, card models.Scorecard, okCount, degradedCount, unavailableCount int) string {
	message := "📊 *Validation report ready*\n\n"
	message += fmt.Sprintf("💡 %s\n", escapeMarkdownV2(truncateIdea(idea, 120)))
	message += fmt.Sprintf("🏁 Composite score: *%d*/100\n\n", card.Composite)

	neutral := make(map[models.Factor]bool, len(card.Neutral))
	for _, f := range card.Neutral {
		neutral[f] = true
	}
	for _, factor := range models.AllFactors() {
		score := escapeMarkdownV2(fmt.Sprintf("%.0f", card.Breakdown[factor]))
		line := fmt.Sprintf("   %s: %s", escapeMarkdownV2(factorLabels[factor]), score)
		if neutral[factor] {
			line += " \\(no evidence\\)"
		}
		message += line + "\n"
	}

	message += fmt.Sprintf("\n📡 Sources: %d ok, %d degraded, %d unavailable\n",
		okCount, degradedCount, unavailableCount)
	if len(card.Neutral) == len(models.AllFactors()) {
		message += "\n⚠️ Every factor fell back to the neutral default \\- treat this score as a low\\-confidence baseline\\."
	}
	return message
}

func truncateIdea(idea string, n int) string {
	if len(idea) <= n {
		return idea
	}
	return idea[:n] + "..."
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
