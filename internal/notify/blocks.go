package notify

import (
	"fmt"
	"time"

	"github.com/costguard/costguard/internal/models"
)

// Block Kit payload types. Only the shapes this project emits are modeled.

// Text is a Block Kit text object (plain_text or mrkdwn).
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func plain(s string) Text  { return Text{Type: "plain_text", Text: s, Emoji: true} }
func mrkdwn(s string) Text { return Text{Type: "mrkdwn", Text: s} }

// Button is an interactive button element.
type Button struct {
	Type     string `json:"type"`
	Text     Text   `json:"text"`
	Style    string `json:"style,omitempty"`
	ActionID string `json:"action_id"`
	Value    string `json:"value"`
}

// Block is one Block Kit layout block. Elements holds Button or Text values
// depending on the block type.
type Block struct {
	Type     string `json:"type"`
	BlockID  string `json:"block_id,omitempty"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []any  `json:"elements,omitempty"`
}

// Message is a complete webhook payload.
type Message struct {
	Blocks []Block `json:"blocks"`
}

func header(text string) Block {
	t := plain(text)
	return Block{Type: "header", Text: &t}
}

func section(text string) Block {
	t := mrkdwn(text)
	return Block{Type: "section", Text: &t}
}

func fieldSection(fields ...Text) Block {
	return Block{Type: "section", Fields: fields}
}

func divider() Block { return Block{Type: "divider"} }

func contextLine(text string) Block {
	return Block{Type: "context", Elements: []any{mrkdwn(text)}}
}

var severityEmoji = map[models.Severity]string{
	models.SeverityInfo:     ":information_source:",
	models.SeverityWarning:  ":warning:",
	models.SeverityCritical: ":rotating_light:",
}

// AnomalyAlert renders one surfaced anomaly with feedback buttons. analysis
// is the optional assistant narrative; empty omits the section.
func AnomalyAlert(a *models.Anomaly, analysis string, now time.Time) *Message {
	emoji, ok := severityEmoji[a.Severity]
	if !ok {
		emoji = ":grey_question:"
	}

	blocks := []Block{
		header(fmt.Sprintf("%s Cost Anomaly Detected", emoji)),
		fieldSection(
			mrkdwn(fmt.Sprintf("*Service*\n%s", a.Service)),
			mrkdwn(fmt.Sprintf("*Change*\n$%+.2f (%+.0f%%)", a.Amount, a.PercentChange)),
			mrkdwn(fmt.Sprintf("*Current Cost*\n$%.2f", a.CurrentCost)),
			mrkdwn(fmt.Sprintf("*Baseline*\n$%.2f", a.BaselineCost)),
		),
		divider(),
	}

	if analysis != "" {
		blocks = append(blocks,
			section(fmt.Sprintf("*AI Analysis*\n%s", analysis)),
			divider(),
		)
	}

	if a.RelatedChangeID != "" {
		blocks = append(blocks, contextLine(fmt.Sprintf(
			"Exceeds acknowledged change `%s` — previously explained, now materially worse.", shortID(a.RelatedChangeID))))
	}

	blocks = append(blocks, Block{
		Type:    "actions",
		BlockID: "anomaly_feedback_" + a.ID,
		Elements: []any{
			Button{Type: "button", Text: plain(":white_check_mark: Expected"), Style: "primary", ActionID: "feedback_expected", Value: a.ID},
			Button{Type: "button", Text: plain(":x: Unexpected"), Style: "danger", ActionID: "feedback_unexpected", Value: a.ID},
			Button{Type: "button", Text: plain(":mag: Investigating"), ActionID: "feedback_investigating", Value: a.ID},
		},
	})

	blocks = append(blocks, contextLine(fmt.Sprintf("Alert ID: `%s` | %s | Severity: %s",
		shortID(a.ID), now.UTC().Format("2006-01-02 15:04 UTC"), a.Severity)))

	return &Message{Blocks: blocks}
}

// BudgetAlert renders a monthly budget threshold breach.
func BudgetAlert(bs *models.BudgetStatus, severity models.Severity, now time.Time) *Message {
	emoji := severityEmoji[severity]
	return &Message{Blocks: []Block{
		header(fmt.Sprintf("%s Monthly Budget Alert", emoji)),
		fieldSection(
			mrkdwn(fmt.Sprintf("*Budget*\n$%.2f", bs.MonthlyBudget)),
			mrkdwn(fmt.Sprintf("*Spent*\n$%.2f", bs.MonthlySpent)),
			mrkdwn(fmt.Sprintf("*Utilization*\n%.0f%%", bs.MonthlyPercent)),
		),
		contextLine(fmt.Sprintf("%s | Severity: %s", now.UTC().Format("2006-01-02 15:04 UTC"), severity)),
	}}
}

// SimpleMessage renders a one-line message, used for heartbeats and
// operational notices.
func SimpleMessage(text string) *Message {
	return &Message{Blocks: []Block{section(text)}}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
