package ingress

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/harunnryd/hanko/internal/channel"
	"github.com/harunnryd/hanko/internal/contract"

	"github.com/slack-go/slack"
)

// slackAck is the interaction response payload; Slack replaces the original
// interactive message with it so the buttons disappear once pressed.
type slackAck struct {
	ReplaceOriginal bool   `json:"replace_original"`
	Text            string `json:"text"`
}

func (s *Server) handleSlackInteraction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if s.signingSecret != "" {
		sv, err := slack.NewSecretsVerifier(r.Header, s.signingSecret)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, err := sv.Write(body); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := sv.Ensure(); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	// Interaction payloads arrive form-encoded with the JSON in "payload".
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(r.PostFormValue("payload")), &callback); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if callback.Type != slack.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	action := callback.ActionCallback.BlockActions[0]
	approvalID := action.Value

	var decision contract.Decision
	switch action.ActionID {
	case channel.SlackActionApprove:
		decision = contract.DecisionApproved
	case channel.SlackActionReject:
		decision = contract.DecisionRejected
	default:
		slog.Warn("Unknown Slack action", "action_id", action.ActionID)
		w.WriteHeader(http.StatusOK)
		return
	}

	approvedBy := callback.User.Name
	if approvedBy == "" {
		approvedBy = callback.User.ID
	}

	// Slack can redeliver an interaction; the trigger ID identifies one
	// button press. The key is marked only after the engine accepted the
	// decision so a transient failure keeps the redelivery eligible.
	triggerKey := ""
	if s.deliveries != nil && callback.TriggerID != "" {
		triggerKey = "slack:" + callback.TriggerID
		if s.deliveries.Seen(triggerKey) {
			slog.Info("Duplicate Slack interaction dropped", "approval_id", approvalID, "trigger_id", callback.TriggerID)
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	c, err := s.engine.ProcessResponse(r.Context(), approvalID, decision, approvedBy, "")
	if err != nil && c == nil {
		slog.Error("Failed to process Slack decision", "approval_id", approvalID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.markDelivered(triggerKey)
	writeJSON(w, http.StatusOK, slackAck{
		ReplaceOriginal: true,
		Text:            interactionSummary(c),
	})
}

func interactionSummary(c *contract.ApprovalContract) string {
	switch c.Decision {
	case contract.DecisionApproved:
		return ":white_check_mark: *" + c.Task + "* approved by " + c.ApprovedBy
	case contract.DecisionRejected:
		return ":no_entry: *" + c.Task + "* rejected by " + c.ApprovedBy
	case contract.DecisionTimeout:
		return ":hourglass: *" + c.Task + "* timed out before a decision was made"
	default:
		return "*" + c.Task + "*: " + string(c.Decision)
	}
}
