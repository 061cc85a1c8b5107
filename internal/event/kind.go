package event

// Class is the storage-policy class of an event kind. It decides whether an
// incoming event is simply inserted, supersedes an older event from the same
// author, or is never persisted at all.
type Class int

const (
	// ClassRegular events are stored keyed by id; duplicates are no-ops.
	ClassRegular Class = iota
	// ClassReplaceable events keep exactly one row per (pubkey, kind).
	ClassReplaceable
	// ClassParamReplaceable events keep one row per (pubkey, kind, d-tag).
	ClassParamReplaceable
	// ClassEphemeral events are forwarded to live subscribers and discarded.
	ClassEphemeral
)

// KindAuth is the event kind used for authentication responses.
const KindAuth = 22242

// ClassOf maps a kind to its storage-policy class.
func ClassOf(kind int) Class {
	switch {
	case kind == 0 || kind == 3:
		return ClassReplaceable
	case kind >= 10000 && kind < 20000:
		return ClassReplaceable
	case kind >= 20000 && kind < 30000:
		return ClassEphemeral
	case kind >= 30000 && kind < 40000:
		return ClassParamReplaceable
	default:
		return ClassRegular
	}
}
