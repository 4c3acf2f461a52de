package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/slack-go/slack"
	"github.com/stockalert/stockalert/internal/alerts"
	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/utils"
)

// maxFallbackLength bounds the plain-text fallback shown in Slack push notifications
const maxFallbackLength = 150

// ErrNotConfigured is returned when Slack escalation is requested while inactive
var ErrNotConfigured = errors.New("slack is not configured")

// Notifier posts notifications to the configured alerts channel
type Notifier struct {
	manager *Manager
}

// NewNotifier creates a notifier backed by manager
func NewNotifier(manager *Manager) *Notifier {
	return &Notifier{manager: manager}
}

// IsActive reports whether a post would be attempted
func (n *Notifier) IsActive() bool {
	return n.manager != nil && n.manager.IsActive()
}

// Notify posts one notification; failures are returned to the caller to log
func (n *Notifier) Notify(ctx context.Context, notification *database.Notification) error {
	if n.manager == nil {
		return ErrNotConfigured
	}
	client, resolver, channel := n.manager.target()
	if client == nil || channel == "" {
		return ErrNotConfigured
	}

	channelID, err := resolver.ResolveChannel(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to resolve channel %s: %w", channel, err)
	}

	_, ts, err := client.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(fallbackText(notification), false),
		slack.MsgOptionBlocks(BuildNotificationBlocks(notification)...),
	)
	if err != nil {
		return fmt.Errorf("failed to post Slack message: %w", err)
	}

	log.Printf("Slack: posted notification %s to %s (ts=%s)", notification.ID, channelID, ts)
	return nil
}

func fallbackText(n *database.Notification) string {
	return utils.TruncateText(fmt.Sprintf("[%s] %s", n.Severity, n.Summary), maxFallbackLength)
}

// BuildNotificationBlocks renders a notification as Block Kit blocks
func BuildNotificationBlocks(n *database.Notification) []slack.Block {
	emoji := alerts.GetSeverityEmoji(alerts.Severity(n.Severity))

	headline := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("%s *%s* %s", emoji, n.Severity, n.Summary), false, false),
		nil, nil,
	)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Rule*\n"+n.RuleKind, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Product*\n"+n.SubjectID, false, false),
	}
	if qty, ok := n.Facts["current_quantity"]; ok {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Quantity*\n%v", qty), false, false))
	}
	if days, ok := n.Facts["days_until_expiry"]; ok {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Days to expiry*\n%v", days), false, false))
	}
	details := slack.NewSectionBlock(nil, fields, nil)

	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("Notification `%s` at %s", n.ID, n.CreatedAt.UTC().Format(time.RFC3339)), false, false),
	)

	return []slack.Block{headline, details, footer}
}
