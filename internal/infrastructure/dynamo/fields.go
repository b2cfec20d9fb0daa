package dynamo

// DynamoDB attribute names used in keys and update expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID         = "user_id"
	fieldUniqueKey      = "unique_key"
	fieldSessionID      = "session_id"
	fieldIdentifier     = "identifier"
	fieldUsername       = "username"
	fieldEnable         = "enable"
	fieldEmailVerified  = "email_verified"
	fieldMobileVerified = "mobile_verified"
	fieldUpdatedAt      = "updated_at"
	fieldPurgeAt        = "purge_at"
	fieldExpiresAt      = "expires_at"
	fieldCurrent        = "current"
)

// Prefixes for guard items in the user_uniques table.
const (
	uniqueEmailPrefix = "email#"
	uniquePhonePrefix = "phone#"
)

// Prefix for per-user pointer items in the username_claims table. '#' never
// appears in a valid username.
const claimPointerPrefix = "user#"

const (
	codeConditionalCheckFailed = "ConditionalCheckFailed"
	codeTransactionConflict    = "TransactionConflict"
)
