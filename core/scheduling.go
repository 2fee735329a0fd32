package core

// SchedulingMethod is the iTIP method of a scheduling message.
type SchedulingMethod string

const (
	MethodRequest SchedulingMethod = "REQUEST"
	MethodReply   SchedulingMethod = "REPLY"
	MethodCancel  SchedulingMethod = "CANCEL"
)

// SchedulingMessage is an incoming iTIP message, e.g. extracted from a mail.
type SchedulingMessage struct {
	ID         string           `json:"id"`
	Method     SchedulingMethod `json:"method"`
	Event      *Event           `json:"event"`
	Originator string           `json:"originator"`
	Recipient  string           `json:"recipient"`
}

// SchedulingAction is a suggested reaction to a scheduling message.
type SchedulingAction string

const (
	ActionAccept      SchedulingAction = "accept"
	ActionDecline     SchedulingAction = "decline"
	ActionTentative   SchedulingAction = "tentative"
	ActionApplyChange SchedulingAction = "apply_change"
	ActionApplyCancel SchedulingAction = "apply_cancel"
	ActionIgnore      SchedulingAction = "ignore"
)

// SchedulingAnalysis describes how a message relates to stored events.
type SchedulingAnalysis struct {
	MessageID string             `json:"message"`
	Method    SchedulingMethod   `json:"method"`
	Existing  *Event             `json:"existing,omitempty"`
	Actions   []SchedulingAction `json:"actions"`
	Outdated  bool               `json:"outdated,omitempty"`
}
