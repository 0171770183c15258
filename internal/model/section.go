package model

// FollowUp is a suggested next question shown after a section's answer.
// Target is nil when the source line carried no resolvable section id.
type FollowUp struct {
	Text   string  `json:"text"`
	Target *string `json:"target"`
}

// Section is one authored unit of content parsed from the source document.
type Section struct {
	ID        string     `json:"id"`
	Body      string     `json:"content"`
	Questions []string   `json:"questions"`
	FollowUps []FollowUp `json:"follow_ups"`
	CrossRefs []string   `json:"drill_downs"`
}
