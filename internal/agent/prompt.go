package agent

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spigell/socius/internal/matching"
	"github.com/spigell/socius/internal/profile"
	"github.com/spigell/socius/internal/store"
	"github.com/spigell/socius/internal/utils"
)

//go:embed prompts/system.md
var systemTemplate string

//go:embed prompts/outreach.md
var outreachTemplate string

//go:embed prompts/incoming.md
var incomingTemplate string

const promptHistoryLength = 5

func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func (a *Agent) systemPrompt(prefs *store.Preferences) string {
	style := "{}"
	if prefs != nil {
		if data, err := json.Marshal(prefs.ConversationStyle); err == nil {
			style = string(data)
		}
	}

	self := a.Self()
	role := strings.TrimSpace(self.Role)
	if role == "" {
		role = "professional"
	}

	return render(systemTemplate, map[string]string{
		"AGENT_NAME":         a.cfg.AgentName,
		"USER_NAME":          self.DisplayName("User"),
		"USER_ROLE":          role,
		"USER_INTERESTS":     strings.Join(self.Interests, ", "),
		"CONVERSATION_STYLE": style,
	})
}

func (a *Agent) outreachPrompt(other *profile.Profile, result matching.Result, detection Detection) string {
	otherJSON, err := json.MarshalIndent(other, "", "  ")
	if err != nil {
		otherJSON = []byte("{}")
	}

	event := detection.EventName()
	if event == "" {
		event = "the same event"
	}

	return render(outreachTemplate, map[string]string{
		"OTHER_NAME":    other.DisplayName("them"),
		"USER_NAME":     a.Self().DisplayName("the user"),
		"EVENT_NAME":    event,
		"MATCH_REASON":  result.Reason,
		"MATCH_SCORE":   fmt.Sprintf("%.0f%%", result.Score*100),
		"OTHER_PROFILE": string(otherJSON),
	})
}

func (a *Agent) incomingPrompt(sender *profile.Profile, message string, history []store.Message) string {
	historyText := "First message"
	if recent := utils.LastN(history, promptHistoryLength); len(recent) > 0 {
		if data, err := json.MarshalIndent(recent, "", "  "); err == nil {
			historyText = string(data)
		}
	}

	return render(incomingTemplate, map[string]string{
		"SENDER_NAME": sender.DisplayName("someone"),
		"MESSAGE":     message,
		"HISTORY":     historyText,
		"USER_NAME":   a.Self().DisplayName("the user"),
	})
}
