package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("intentgate: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Relationship:* %s", event.RelationshipID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Intent:* %s (%s)", event.Intent, event.Protocol)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Trust level:* %d", event.TrustLevel)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "warning"
	if event.Type == "breach" {
		severity = "critical"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("intentgate %s: %s on %s", event.Type, event.Intent, event.RelationshipID),
			"severity": severity,
			"source":   "intentgate",
			"custom_details": map[string]any{
				"relationship_id": event.RelationshipID,
				"intent":          event.Intent,
				"protocol":        event.Protocol,
				"trust_level":     event.TrustLevel,
				"reason":          event.Reason,
				"entry_hash":      event.EntryHash,
			},
		},
	}
	return json.Marshal(payload)
}
