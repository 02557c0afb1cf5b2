package enum

// AccountType tags the connection variant of a mail account.
type AccountType string

const (
	AccountOAuthGmail AccountType = "oauth_gmail"
	AccountOAuthGraph AccountType = "oauth_graph"
	AccountIMAPSMTP   AccountType = "imap_smtp"
)

func (t AccountType) String() string {
	return string(t)
}

type SyncStatus string

const (
	SyncStatusOK      SyncStatus = "ok"
	SyncStatusError   SyncStatus = "error"
	SyncStatusPending SyncStatus = "pending"
)

func (t SyncStatus) String() string {
	return string(t)
}
