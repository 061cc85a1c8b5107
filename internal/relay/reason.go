package relay

// ReasonCode categorizes the machine-readable prefix on acknowledgment
// reasons. OK and CLOSED reasons are "<code>: <detail>"; clients dispatch
// on the prefix, humans read the rest.
type ReasonCode string

const (
	// CodeInvalid marks an event that failed validation.
	CodeInvalid ReasonCode = "invalid"

	// CodeDuplicate marks a no-op submission: the id is already stored, or
	// a newer event holds the replacement key.
	CodeDuplicate ReasonCode = "duplicate"

	// CodeError marks a server-side failure handling an otherwise valid
	// request.
	CodeError ReasonCode = "error"

	// CodeAuthRequired marks a request refused pending authentication.
	CodeAuthRequired ReasonCode = "auth-required"
)

// reason formats a coded acknowledgment reason.
func reason(code ReasonCode, detail string) string {
	return string(code) + ": " + detail
}
