package enum

type CalendarProviderType string

const (
	CalendarGoogle    CalendarProviderType = "google"
	CalendarMicrosoft CalendarProviderType = "microsoft"
)

func (t CalendarProviderType) String() string {
	return string(t)
}
