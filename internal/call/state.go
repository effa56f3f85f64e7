package call

type State string

const (
	StateIdle            State = "idle"
	StateAnswerRequested State = "answer_requested"
	StateAnswered        State = "answered"
	StatePromptRequested State = "prompt_requested"
	StatePromptSent      State = "prompt_sent"
	StateFailed          State = "failed"
	StateEnded           State = "ended"
)

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StatePromptSent, StateFailed, StateEnded:
		return true
	}
	return false
}
