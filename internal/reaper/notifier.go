package reaper

import (
	"context"

	"github.com/slack-go/slack"
)

// SlackNotifier posts reap notifications to a Slack incoming webhook,
// satisfying the Notifier contract. channel maps onto the webhook URL
// configured for that channel, since incoming webhooks are pre-bound to
// one destination rather than addressed per-call.
type SlackNotifier struct {
	webhookURLs map[string]string
}

// NewSlackNotifier takes a channel-name -> webhook-URL mapping; Post
// looks up the URL for the requested channel.
func NewSlackNotifier(webhookURLs map[string]string) *SlackNotifier {
	return &SlackNotifier{webhookURLs: webhookURLs}
}

func (n *SlackNotifier) Post(ctx context.Context, channel, message string) error {
	url, ok := n.webhookURLs[channel]
	if !ok {
		return nil
	}
	return slack.PostWebhookContext(ctx, url, &slack.WebhookMessage{
		Text: message,
	})
}
