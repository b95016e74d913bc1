package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tasklab/agentq/llm"
	"github.com/tasklab/agentq/task"
)

// ProfileType is the agent type served by the LLM-backed capability.
const ProfileType = "profile"

const profileSystemPrompt = `You are a user-profiling assistant. Given a description of
content a user interacted with, respond with a JSON object and nothing
else: {"tags": [string], "score": int 0-100, "reason": string}.
Tags categorize the user's interests, score rates purchase intent,
reason explains the assessment in one sentence.`

// Profile generates user profiles from task payloads with an LLM.
type Profile struct {
	provider llm.Provider
}

// NewProfile creates a profile agent backed by the given provider.
func NewProfile(provider llm.Provider) *Profile {
	return &Profile{provider: provider}
}

// Type implements Agent.
func (p *Profile) Type() string { return ProfileType }

// PrepareInput implements Agent: it builds the user prompt.
func (p *Profile) PrepareInput(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", fmt.Errorf("empty payload")
	}
	return fmt.Sprintf("The user interacted with the following content:\n\n%s\n\nProduce the profile JSON.", payload), nil
}

// Process implements Agent: one completion call.
func (p *Profile) Process(ctx context.Context, taskID, input string) (string, error) {
	return p.provider.Complete(ctx, llm.Request{
		System: profileSystemPrompt,
		Prompt: input,
	})
}

// ParseResponse implements Agent. Completions often wrap the JSON in
// code fences or prose; extract the first JSON object and validate it.
func (p *Profile) ParseResponse(raw string) (task.Profile, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return task.Profile{}, fmt.Errorf("completion contains no JSON object")
	}

	var profile task.Profile
	if err := json.Unmarshal([]byte(jsonText), &profile); err != nil {
		return task.Profile{}, fmt.Errorf("completion JSON invalid: %w", err)
	}

	if len(profile.Tags) == 0 {
		return task.Profile{}, fmt.Errorf("profile has no tags")
	}
	if profile.Score < 0 || profile.Score > 100 {
		return task.Profile{}, fmt.Errorf("profile score %d out of range", profile.Score)
	}
	if strings.TrimSpace(profile.Reason) == "" {
		return task.Profile{}, fmt.Errorf("profile has no reason")
	}
	return profile, nil
}

// extractJSON returns the first top-level JSON object in s, tolerating
// markdown code fences around it.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
