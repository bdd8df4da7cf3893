package pipeline

import (
	"fmt"
	"strings"

	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/estimate"
	"github.com/yamaguchigo1923/claude-agent-sdk/pkg/session"
)

// Fixed replies.
const (
	MsgCancelled       = "Cancelled. Send me a message whenever you need something else."
	MsgFailed          = "❌ Something went wrong and this conversation was reset. Please send your request again."
	MsgStaleNote       = "\n\n_(This conversation was cancelled while the step was running, so nothing was kept.)_"
	MsgConfirmReprompt = "Please answer *はい* (yes) or *いいえ* (no). You can also send *キャンセル* to stop."
	MsgAskTopic        = "🔍 *What should I research?*\n\nPlease give me a concrete topic,\ne.g. 「TikTok トレンド 2026」 or 「Instagram リール 伸びる投稿パターン」."
	MsgNoProposals     = "There is no proposal list to go back to. Send 「台本作って」 to start a new draft."

	// Progress lines posted when a long step starts.
	MsgReadingSheet   = "📊 Reading past scripts from the spreadsheet..."
	MsgWebResearch    = "🔍 Researching current trends on the web..."
	MsgProposing      = "✍️ Generating proposals..."
	MsgRegenerating   = "🔄 Regenerating the proposals with your direction..."
	MsgExpanding      = "📝 Writing proposal %d in full..."
	MsgRevising       = "🔄 Revising the draft..."
	MsgSaving         = "💾 Saving the draft..."
	MsgResearchStarts = "▶️ Starting research on *%s*. This usually takes several minutes."

	reviewFooter = "Send *確定* to finalize it.\nTell me what to change to revise it.\nSend *他の案* to go back to the proposals.\n(Send *キャンセル* to stop.)"
	reviseFooter = "Send *確定* to finalize it, or tell me what else to change."
)

func helpText(research, drafts estimate.Forecast) string {
	return fmt.Sprintf(`Send me any request and I will start the pipeline that can handle it.

Available pipelines:
📊 *research*: social media and SEO research
　e.g. 「Instagram リール 2026 のトレンドを調べて」
　⏱ %s | 💰 %s

📝 *mk_draft*: short-video script drafts
　e.g. 「次の台本を作って」「食べ物系で投稿台本を作成して」
　⏱ %s | 💰 %s

I will show the expected time and cost before anything runs.
If your request is unclear I will ask a question first.`,
		research.TimeText(), research.CostText(), drafts.TimeText(), drafts.CostText())
}

func confirmResearchText(topic string, f estimate.Forecast) string {
	return fmt.Sprintf("📋 *Request received*\n\n"+
		"🤖 *research* can handle this\n"+
		"🔍 Topic: *%s*\n"+
		"⏱ Expected time: %s\n"+
		"💰 Estimated cost: %s\n"+
		"　(%s)\n\n"+
		"Run it? → *はい* or *いいえ*\n"+
		"Send a different topic to change it.",
		topic, f.TimeText(), f.CostText(), f.Note())
}

func confirmDraftText(hint string, f estimate.Forecast) string {
	var b strings.Builder
	b.WriteString("📋 *Request received*\n\n")
	b.WriteString("🤖 *mk_draft* can handle this\n")
	b.WriteString("📝 New script draft based on the spreadsheet history\n")
	if hint != "" {
		fmt.Fprintf(&b, "📌 Direction: _%s_\n", hint)
	}
	fmt.Fprintf(&b, "⏱ Expected time: %s\n💰 Estimated cost: %s\n　(%s)\n\n", f.TimeText(), f.CostText(), f.Note())
	b.WriteString("Run it? → *はい* or *いいえ*\n")
	b.WriteString("Add direction after yes if you like, e.g. 「はい、食べ物系で」")
	return b.String()
}

var stepLabels = map[session.Step]string{
	session.StepResearch:  "🔍 Web research",
	session.StepProposals: "✍️ Proposals",
	session.StepExpand:    "📝 Draft",
	session.StepRevise:    "🔄 Revisions",
}

// costBreakdown lists every step that cost something.
func costBreakdown(c session.CostLedger, usdToJPY float64) string {
	var lines []string
	for _, s := range session.Steps {
		usd := c.Step(s)
		if usd == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: $%.4f (about %.0f JPY)", stepLabels[s], usd, usd*usdToJPY))
	}
	if len(lines) == 0 {
		return ""
	}
	return "\n💸 *Cost breakdown:*\n" + strings.Join(lines, "\n")
}
