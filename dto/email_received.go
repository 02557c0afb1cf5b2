package dto

// EmailReceived is the event published by the ingestion worker for every
// newly stored inbound email; the pipeline listener consumes it.
type EmailReceived struct {
	TenantID  string `json:"tenantId"`
	AccountID string `json:"accountId"`
	EmailID   string `json:"emailId"`
	MessageID string `json:"messageId"`
}
