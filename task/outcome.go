package task

import "encoding/json"

// Profile is the baseline agent-defined result payload: a small user
// profile derived from the task content.
type Profile struct {
	Tags   []string `json:"tags"`
	Score  int      `json:"score"`
	Reason string   `json:"reason"`
}

// ErrorInfo describes a failed outcome in wire form.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is the normalized result of running one task, published to
// the result topic exactly once per processed task. Result is null on
// failure; Error is absent on success.
type Outcome struct {
	TaskID  string     `json:"task_id"`
	UserID  string     `json:"user_id"`
	Success bool       `json:"success"`
	Result  any        `json:"result"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// NewSuccessOutcome builds a success outcome carrying the agent's result data.
func NewSuccessOutcome(taskID, userID string, result any) Outcome {
	return Outcome{
		TaskID:  taskID,
		UserID:  userID,
		Success: true,
		Result:  result,
	}
}

// NewFailureOutcome builds a failure outcome with a populated error
// code and message. Result stays null.
func NewFailureOutcome(taskID, userID, code, message string) Outcome {
	return Outcome{
		TaskID: taskID,
		UserID: userID,
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// Encode serializes the outcome to its JSON wire form.
func (o Outcome) Encode() ([]byte, error) {
	return json.Marshal(o)
}

// DecodeOutcome parses an outcome body, used by result consumers and tests.
func DecodeOutcome(body []byte) (Outcome, error) {
	var o Outcome
	if err := json.Unmarshal(body, &o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}
