package domain

const (
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
)

const (
	TxStatusPending   = "PENDING"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

const (
	ProviderMpesa = "mpesa"
	ProviderFree  = "free"
	ProviderCard  = "card"
)

// Classified failure reasons for a settled-failed transaction.
const (
	FailReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	FailReasonUserCancelled     = "USER_CANCELLED"
	FailReasonExpired           = "EXPIRED"
	FailReasonUnknown           = "UNKNOWN"
)

// Daraja result codes the callback classifier understands.
const (
	MpesaResultSuccess           = 0
	MpesaResultInsufficientFunds = 1
	MpesaResultUserCancelled     = 1032
)

const (
	EnrollmentSourceMpesa = "mpesa"
	EnrollmentSourceFree  = "free"
)

// GuestUserID is the sentinel for unauthenticated payers. Guest transactions
// settle normally but never enroll anyone.
const GuestUserID uint = 0

// SettlementCurrency is the only currency the provider accepts.
const SettlementCurrency = "KES"
