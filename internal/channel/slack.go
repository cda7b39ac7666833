package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/harunnryd/hanko/internal/contract"
	"github.com/harunnryd/hanko/internal/errors"

	"github.com/slack-go/slack"
)

// Block action IDs carried in the interactive message; the ingress callback
// matches on these to recover the decision.
const (
	SlackActionApprove = "approval_approve"
	SlackActionReject  = "approval_reject"
	slackActionBlockID = "approval_actions"
)

// SlackNotifier is the primary channel: the approval request is posted as an
// interactive message and Slack invokes the callback on button press.
type SlackNotifier struct {
	client    *slack.Client
	channelID string
}

func NewSlackNotifier(botToken, channelID string) *SlackNotifier {
	return &SlackNotifier{
		client:    slack.New(botToken),
		channelID: channelID,
	}
}

// NewSlackNotifierWithClient is used by tests to inject a preconfigured client.
func NewSlackNotifierWithClient(client *slack.Client, channelID string) *SlackNotifier {
	return &SlackNotifier{client: client, channelID: channelID}
}

func (s *SlackNotifier) Name() string {
	return "slack"
}

func (s *SlackNotifier) Kind() contract.ChannelKind {
	return contract.ChannelSlack
}

func (s *SlackNotifier) Dispatch(ctx context.Context, c *contract.ApprovalContract, callbackURL string) (*DispatchReceipt, error) {
	blocks := buildApprovalBlocks(c)

	fallbackText := fmt.Sprintf("Approval required: %s (requested by %s, environment %s)",
		c.Task, c.RequestedBy, c.Environment)

	channelID, ts, err := s.client.PostMessageContext(ctx, s.channelID,
		slack.MsgOptionText(fallbackText, false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to post approval message: %v: %w", err, errors.ErrDispatchFailed)
	}

	slog.Info("Approval request dispatched", "channel", "slack", "approval_id", c.ApprovalID, "slack_channel", channelID, "ts", ts)
	return &DispatchReceipt{
		Channel: contract.ChannelSlack,
		Ref:     ts,
		SentAt:  time.Now(),
	}, nil
}

func (s *SlackNotifier) Health(ctx context.Context) error {
	if _, err := s.client.AuthTestContext(ctx); err != nil {
		return errors.Transient("Slack connection failed")
	}
	return nil
}

func buildApprovalBlocks(c *contract.ApprovalContract) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, "Approval required", false, false),
	)

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, "*Task:*\n"+c.Task, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Requested by:*\n"+c.RequestedBy, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Environment:*\n"+c.Environment, false, false),
		slack.NewTextBlockObject(slack.MarkdownType, "*Deadline:*\n"+c.Deadline.Format(time.RFC3339), false, false),
	}

	// Context payload is rendered as-is; the engine never interprets it.
	keys := make([]string, 0, len(c.Context))
	for k := range c.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*%s:*\n%s", k, c.Context[k]), false, false))
	}

	details := slack.NewSectionBlock(nil, fields, nil)

	approveBtn := slack.NewButtonBlockElement(SlackActionApprove, c.ApprovalID,
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false))
	approveBtn.Style = slack.StylePrimary

	rejectBtn := slack.NewButtonBlockElement(SlackActionReject, c.ApprovalID,
		slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false))
	rejectBtn.Style = slack.StyleDanger

	actions := slack.NewActionBlock(slackActionBlockID, approveBtn, rejectBtn)

	return []slack.Block{header, details, actions}
}
