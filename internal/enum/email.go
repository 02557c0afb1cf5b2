package enum

type EmailDirection string

const (
	EmailInbound  EmailDirection = "inbound"
	EmailOutbound EmailDirection = "outbound"
)

func (t EmailDirection) String() string {
	return string(t)
}

// EmailStatus is the state of an email inside the processing pipeline.
// Sent, Escalated and Error are terminal for drafting logic.
type EmailStatus string

const (
	EmailStatusPending     EmailStatus = "pending"
	EmailStatusClassifying EmailStatus = "classifying"
	EmailStatusDrafting    EmailStatus = "drafting"
	EmailStatusValidating  EmailStatus = "validating"
	EmailStatusSending     EmailStatus = "sending"
	EmailStatusSent        EmailStatus = "sent"
	EmailStatusEscalated   EmailStatus = "escalated"
	EmailStatusError       EmailStatus = "error"
)

func (t EmailStatus) String() string {
	return string(t)
}

func (t EmailStatus) IsTerminal() bool {
	switch t {
	case EmailStatusSent, EmailStatusEscalated, EmailStatusError:
		return true
	}
	return false
}
