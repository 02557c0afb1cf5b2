package enum

type FollowUpStatus string

const (
	FollowUpStatusPending   FollowUpStatus = "pending"
	FollowUpStatusSent      FollowUpStatus = "sent"
	FollowUpStatusCancelled FollowUpStatus = "cancelled"
	FollowUpStatusResponded FollowUpStatus = "responded"
)

func (t FollowUpStatus) String() string {
	return string(t)
}
