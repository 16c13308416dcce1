package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bmcscout/bmcscout/internal/config"
)

// --- helpers ----------------------------------------------------------------

// captureWebhook returns an engine configured with one webhook of the given
// type pointing at a capture server, and a channel with decoded payloads.
func captureWebhook(t *testing.T, whType string) (*Engine, chan map[string]interface{}) {
	t.Helper()
	got := make(chan map[string]interface{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		got <- body
	}))
	t.Cleanup(srv.Close)

	t.Setenv("TEST_WEBHOOK_URL", srv.URL)
	e := New(config.AlertsConfig{
		Webhooks: []config.WebhookConfig{{Type: whType, URLEnv: "TEST_WEBHOOK_URL"}},
	})
	return e, got
}

func firingAlert() *Alert {
	return &Alert{
		ID:       "hot-inlet:r740-lab-01",
		RuleName: "hot-inlet",
		DeviceID: "r740-lab-01",
		Severity: "critical",
		Message:  "temperature_max_c = 91 (threshold 85)",
		Value:    91,
		FiredAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		State:    "firing",
	}
}

func resolvedAlert() *Alert {
	a := firingAlert()
	now := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)
	a.ResolvedAt = &now
	a.State = "resolved"
	return a
}

func await(t *testing.T, got chan map[string]interface{}) map[string]interface{} {
	t.Helper()
	select {
	case body := <-got:
		return body
	case <-time.After(2 * time.Second):
		t.Fatal("webhook not delivered")
		return nil
	}
}

// --- tests ------------------------------------------------------------------

func TestWebhook_SlackCarriesAlertFields(t *testing.T) {
	e, got := captureWebhook(t, "slack")
	e.deliver(firingAlert())

	body := await(t, got)
	atts, ok := body["attachments"].([]interface{})
	if !ok || len(atts) != 1 {
		t.Fatalf("attachments: %v", body)
	}
	att := atts[0].(map[string]interface{})
	if att["color"] != "danger" {
		t.Errorf("color: got %v, want danger", att["color"])
	}
	title, _ := att["title"].(string)
	if !strings.Contains(title, "hot-inlet") || !strings.Contains(title, "r740-lab-01") {
		t.Errorf("title missing rule or device: %q", title)
	}

	fields, ok := att["fields"].([]interface{})
	if !ok {
		t.Fatalf("fields: %v", att)
	}
	byTitle := map[string]string{}
	for _, f := range fields {
		fm := f.(map[string]interface{})
		byTitle[fm["title"].(string)], _ = fm["value"].(string)
	}
	if byTitle["Device"] != "r740-lab-01" {
		t.Errorf("Device field: got %q", byTitle["Device"])
	}
	if byTitle["Severity"] != "critical" {
		t.Errorf("Severity field: got %q", byTitle["Severity"])
	}
	if byTitle["Value"] != "91" {
		t.Errorf("Value field: got %q", byTitle["Value"])
	}
	if byTitle["State"] != "firing" {
		t.Errorf("State field: got %q", byTitle["State"])
	}
}

func TestWebhook_SlackResolvedTurnsGreen(t *testing.T) {
	e, got := captureWebhook(t, "slack")
	e.deliver(resolvedAlert())

	body := await(t, got)
	att := body["attachments"].([]interface{})[0].(map[string]interface{})
	if att["color"] != "good" {
		t.Errorf("color: got %v, want good", att["color"])
	}
	if title, _ := att["title"].(string); !strings.HasPrefix(title, "Resolved:") {
		t.Errorf("title: got %q, want Resolved: prefix", title)
	}
}

func TestWebhook_TeamsFactsCarryAlertFields(t *testing.T) {
	e, got := captureWebhook(t, "teams")
	e.deliver(firingAlert())

	body := await(t, got)
	if body["@type"] != "MessageCard" {
		t.Errorf("@type: got %v", body["@type"])
	}
	sections, ok := body["sections"].([]interface{})
	if !ok || len(sections) != 1 {
		t.Fatalf("sections: %v", body)
	}
	facts := sections[0].(map[string]interface{})["facts"].([]interface{})
	byName := map[string]string{}
	for _, f := range facts {
		fm := f.(map[string]interface{})
		byName[fm["name"].(string)], _ = fm["value"].(string)
	}
	if byName["Device"] != "r740-lab-01" || byName["Severity"] != "critical" {
		t.Errorf("facts = %v", byName)
	}
}

func TestWebhook_PagerDutyTrigger(t *testing.T) {
	e, got := captureWebhook(t, "pagerduty")
	e.deliver(firingAlert())

	body := await(t, got)
	if body["event_action"] != "trigger" {
		t.Errorf("event_action: got %v, want trigger", body["event_action"])
	}
	if body["dedup_key"] != "hot-inlet:r740-lab-01" {
		t.Errorf("dedup_key: got %v", body["dedup_key"])
	}
	payload, ok := body["payload"].(map[string]interface{})
	if !ok {
		t.Fatalf("payload: %v", body)
	}
	if payload["source"] != "r740-lab-01" || payload["severity"] != "critical" {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebhook_PagerDutyResolveReusesDedupKey(t *testing.T) {
	e, got := captureWebhook(t, "pagerduty")
	e.deliver(firingAlert())
	e.deliver(resolvedAlert())

	first := await(t, got)
	second := await(t, got)
	if second["event_action"] != "resolve" {
		t.Errorf("event_action: got %v, want resolve", second["event_action"])
	}
	if first["dedup_key"] != second["dedup_key"] {
		t.Errorf("dedup keys differ: %v vs %v", first["dedup_key"], second["dedup_key"])
	}
}
