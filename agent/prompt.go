package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pershow/cardagent/providers"
)

// Action is one of the assist operations the agent supports.
type Action string

const (
	ActionResearch      Action = "research"
	ActionSuggestTopics Action = "suggest_topics"
	ActionBreakDownTask Action = "break_down_task"
)

// ParseAction validates a request's action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionResearch, ActionSuggestTopics, ActionBreakDownTask:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// AssistRequest is one client request to start a session.
type AssistRequest struct {
	Action      Action
	FullContent string
	Selection   string
	Context     map[string]string
	Depth       string
}

const baseSystemPrompt = `You are a writing and research assistant embedded in a task board. You help the user improve, research, and organize the content of a card.

Respond in plain markdown. Do not wrap your whole answer in a code fence. Be direct and concrete; do not narrate what you are about to do.`

var actionInstructions = map[Action]string{
	ActionResearch: `The user wants you to research the topic below. Use the web_search tool to find current sources and the fetch_url tool to read the most promising ones before you answer. Ground your answer in what you actually read and mention the sources you used.`,
	ActionSuggestTopics: `The user wants discussion topics for the content below. Suggest a short list of specific, interesting angles worth raising, each with one sentence of rationale. Use the web tools if current context would make the suggestions sharper.`,
	ActionBreakDownTask: `The user wants the task below broken down into actionable steps. Produce a markdown checklist of concrete subtasks in a sensible order. Keep each item small enough to finish in one sitting.`,
}

var depthInstructions = map[string]string{
	"quick":    "Keep the answer brief: the key findings only, a few sentences or bullets.",
	"standard": "Give a balanced answer: the main findings with short supporting detail.",
	"deep":     "Be thorough: cover the main findings, supporting detail, caveats and open questions.",
}

// buildMessages assembles the initial conversation for an action and returns
// it with the tool-choice policy for the first model turn. Research forces at
// least one tool call on the first turn; the other actions let the model
// decide.
func buildMessages(req AssistRequest) ([]providers.Message, providers.ToolChoice) {
	var system strings.Builder
	system.WriteString(baseSystemPrompt)
	system.WriteString("\n\n")
	system.WriteString(actionInstructions[req.Action])
	if d, ok := depthInstructions[req.Depth]; ok {
		system.WriteString("\n\n")
		system.WriteString(d)
	}

	var user strings.Builder
	if req.Selection != "" {
		user.WriteString("Selected text:\n")
		user.WriteString(req.Selection)
		user.WriteString("\n\nFull card content for context:\n")
		user.WriteString(req.FullContent)
	} else {
		user.WriteString("Card content:\n")
		user.WriteString(req.FullContent)
	}
	if len(req.Context) > 0 {
		user.WriteString("\n\nAdditional context:\n")
		keys := make([]string, 0, len(req.Context))
		for k := range req.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&user, "- %s: %s\n", k, req.Context[k])
		}
	}

	messages := []providers.Message{
		{Role: "system", Content: system.String()},
		{Role: "user", Content: user.String()},
	}

	choice := providers.ToolChoiceAuto
	if req.Action == ActionResearch {
		choice = providers.ToolChoiceRequired
	}
	return messages, choice
}
