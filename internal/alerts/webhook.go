package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = e.sendSlack(url, a)
		case "teams":
			err = e.sendTeams(url, a)
		case "pagerduty":
			err = e.sendPagerDuty(url, a)
		case "http":
			err = e.sendHTTP(url, a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"rule", a.RuleName,
				"state", a.State,
			)
		}
	}
}

// sendSlack posts an attachment carrying the alert's identity fields, colored
// by severity. Resolved alerts flip to green with a "Resolved:" title.
func (e *Engine) sendSlack(url string, a *Alert) error {
	title := fmt.Sprintf("%s on %s", a.RuleName, a.DeviceID)
	color := slackColor(a.Severity)
	if a.State == "resolved" {
		title = "Resolved: " + title
		color = "good"
	}

	field := func(title, value string) map[string]interface{} {
		return map[string]interface{}{"title": title, "value": value, "short": true}
	}
	body, _ := json.Marshal(map[string]interface{}{
		"attachments": []map[string]interface{}{{
			"color": color,
			"title": title,
			"text":  a.Message,
			"fields": []map[string]interface{}{
				field("Device", a.DeviceID),
				field("Severity", a.Severity),
				field("Value", fmt.Sprintf("%g", a.Value)),
				field("State", a.State),
			},
			"ts": a.FiredAt.Unix(),
		}},
	})
	return e.post(url, body)
}

// sendTeams posts a MessageCard with the alert fields as facts.
func (e *Engine) sendTeams(url string, a *Alert) error {
	fact := func(name, value string) map[string]string {
		return map[string]string{"name": name, "value": value}
	}
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": teamsColor(a.Severity, a.State),
		"summary":    fmt.Sprintf("%s on %s", a.RuleName, a.DeviceID),
		"title":      fmt.Sprintf("BMCScout Alert: %s", a.RuleName),
		"text":       a.Message,
		"sections": []map[string]interface{}{{
			"facts": []map[string]string{
				fact("Device", a.DeviceID),
				fact("Severity", a.Severity),
				fact("Value", fmt.Sprintf("%g", a.Value)),
				fact("State", a.State),
				fact("Fired", a.FiredAt.UTC().Format(time.RFC3339)),
			},
		}},
	}
	body, _ := json.Marshal(payload)
	return e.post(url, body)
}

// sendPagerDuty posts an Events API v2 event. The dedup key pairs rule and
// device so a resolve closes the incident its firing opened.
func (e *Engine) sendPagerDuty(url string, a *Alert) error {
	action := "trigger"
	if a.State == "resolved" {
		action = "resolve"
	}
	payload := map[string]interface{}{
		"event_action": action,
		"dedup_key":    a.RuleName + ":" + a.DeviceID,
		"payload": map[string]interface{}{
			"summary":   a.Message,
			"source":    a.DeviceID,
			"severity":  pagerdutySeverity(a.Severity),
			"timestamp": a.FiredAt.UTC().Format(time.RFC3339),
			"custom_details": map[string]interface{}{
				"rule":  a.RuleName,
				"value": a.Value,
				"state": a.State,
			},
		},
	}
	body, _ := json.Marshal(payload)
	return e.post(url, body)
}

// sendHTTP posts the raw alert for generic receivers.
func (e *Engine) sendHTTP(url string, a *Alert) error {
	body, _ := json.Marshal(map[string]interface{}{"alert": a})
	return e.post(url, body)
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func slackColor(severity string) string {
	switch severity {
	case "critical":
		return "danger"
	case "warning":
		return "warning"
	default:
		return "#00D4FF"
	}
}

func teamsColor(severity, state string) string {
	if state == "resolved" {
		return "2DCE89"
	}
	switch severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

func pagerdutySeverity(s string) string {
	switch s {
	case "critical", "warning", "error":
		return s
	default:
		return "info"
	}
}
