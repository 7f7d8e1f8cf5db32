package notmuch

import "strconv"

// Status is a status code reported by the native index engine.
//
// Values are numbered exactly as libnotmuch's notmuch_status_t so codes can
// cross the cgo boundary without translation. Status implements error, which
// lets callers test wrapped failures with errors.Is:
//
//	if errors.Is(err, notmuch.StatusDatabaseExists) { ... }
type Status int

const (
	// StatusSuccess means the call completed.
	StatusSuccess Status = iota
	// StatusOutOfMemory means the engine could not allocate.
	StatusOutOfMemory
	// StatusReadOnlyDatabase means a write was attempted on a read-only handle.
	StatusReadOnlyDatabase
	// StatusXapianException means the storage backend raised an exception.
	StatusXapianException
	// StatusFileError means a file could not be read, written, or found.
	StatusFileError
	// StatusFileNotEmail means the file does not look like an email message.
	StatusFileNotEmail
	// StatusDuplicateMessageID means the message is already indexed.
	StatusDuplicateMessageID
	// StatusNullPointer means the engine received or produced a null pointer.
	StatusNullPointer
	// StatusTagTooLong means a tag exceeds TagMax bytes.
	StatusTagTooLong
	// StatusUnbalancedFreezeThaw means freeze and thaw calls do not pair up.
	StatusUnbalancedFreezeThaw
	// StatusUnbalancedAtomic means begin/end atomic calls do not pair up.
	StatusUnbalancedAtomic
	// StatusUnsupportedOperation means the engine does not implement the call.
	StatusUnsupportedOperation
	// StatusUpgradeRequired means the database must be upgraded first.
	StatusUpgradeRequired
	// StatusPathError means a path is not inside the database root.
	StatusPathError
	// StatusIgnored means the operation was deliberately skipped.
	StatusIgnored
	// StatusIllegalArgument means an argument is invalid.
	StatusIllegalArgument
	// StatusMalformedCryptoProtocol means a crypto part could not be parsed.
	StatusMalformedCryptoProtocol
	// StatusFailedCryptoContextCreation means a crypto context failed to start.
	StatusFailedCryptoContextCreation
	// StatusUnknownCryptoProtocol means a crypto protocol is not recognized.
	StatusUnknownCryptoProtocol
	// StatusNoConfig means no configuration could be found.
	StatusNoConfig
	// StatusNoDatabase means no database exists at the given path.
	StatusNoDatabase
	// StatusDatabaseExists means a database already exists at the given path.
	StatusDatabaseExists
	// StatusBadQuerySyntax means a query string could not be parsed.
	StatusBadQuerySyntax
	// StatusNoMailRoot means the mail root could not be determined.
	StatusNoMailRoot
	// StatusClosedDatabase means the database has already been closed.
	StatusClosedDatabase
)

// TagMax is the longest tag, in bytes, the engine accepts.
const TagMax = 200

var statusText = [...]string{
	StatusSuccess:                     "No error occurred",
	StatusOutOfMemory:                 "Out of memory",
	StatusReadOnlyDatabase:            "Attempt to write to a read-only database",
	StatusXapianException:             "A Xapian exception occurred",
	StatusFileError:                   "Something went wrong trying to read or write a file",
	StatusFileNotEmail:                "File is not an email",
	StatusDuplicateMessageID:          "Message ID is identical to a message in database",
	StatusNullPointer:                 "Erroneous NULL pointer",
	StatusTagTooLong:                  "Tag value is too long (exceeds NOTMUCH_TAG_MAX)",
	StatusUnbalancedFreezeThaw:        "Unbalanced number of calls to notmuch_message_freeze/thaw",
	StatusUnbalancedAtomic:            "Unbalanced number of calls to notmuch_database_begin_atomic/end_atomic",
	StatusUnsupportedOperation:        "Unsupported operation",
	StatusUpgradeRequired:             "Operation requires a database upgrade",
	StatusPathError:                   "Path supplied is illegal for this function",
	StatusIgnored:                     "Argument was ignored",
	StatusIllegalArgument:             "Illegal argument for function",
	StatusMalformedCryptoProtocol:     "Crypto protocol missing, malformed, or unintelligible",
	StatusFailedCryptoContextCreation: "Failed to create crypto context",
	StatusUnknownCryptoProtocol:       "Unknown crypto protocol",
	StatusNoConfig:                    "No configuration file found",
	StatusNoDatabase:                  "No database found",
	StatusDatabaseExists:              "Database exists, not recreated",
	StatusBadQuerySyntax:              "Syntax error in query",
	StatusNoMailRoot:                  "No mail root found",
	StatusClosedDatabase:              "Database closed",
}

// String returns the engine's human-readable category for s.
func (s Status) String() string {
	if s >= 0 && int(s) < len(statusText) {
		return statusText[s]
	}
	return "Unknown error status value " + strconv.Itoa(int(s))
}

// Error implements error so Status values can be matched with errors.Is.
func (s Status) Error() string {
	return "notmuch: " + s.String()
}

// OK reports whether s is StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}
