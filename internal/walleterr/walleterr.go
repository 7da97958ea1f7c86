// Package walleterr defines the sentinel error values and error kind
// taxonomy shared by the sync and payment packages, so callers can use
// errors.Is against a stable, documented set of failure modes instead of
// matching on error strings.
package walleterr

import "errors"

// Kind classifies a wallet error into one of the broad categories a
// caller needs to react differently to.
type Kind int

const (
	// KindChainUnavailable covers transient I/O failures a caller MAY
	// retry with backoff.
	KindChainUnavailable Kind = iota
	// KindDataCorruption covers decoded bytes that fail an internal
	// invariant (tree root mismatch, ciphertext that matched an ivk but
	// decoded to garbage); fatal at the batch level, state is rolled back.
	KindDataCorruption
	// KindUsage covers bad arguments: unknown account, invalid address,
	// an empty pool mask, zero confirmations.
	KindUsage
	// KindFunding covers errors where the wallet cannot source enough
	// value or a usable change destination.
	KindFunding
	// KindCrypto covers proving or signing failures inside a
	// ShieldedProver.
	KindCrypto
	// KindConsistency covers errors where on-chain and wallet state
	// diverge; the caller MUST re-sync before retrying.
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindChainUnavailable:
		return "chain_unavailable"
	case KindDataCorruption:
		return "data_corruption"
	case KindUsage:
		return "usage"
	case KindFunding:
		return "funding"
	case KindCrypto:
		return "crypto"
	case KindConsistency:
		return "consistency"
	default:
		return "unknown"
	}
}

var (
	// ErrInsufficientFunds is returned when selected inputs, even after
	// exhausting every eligible pool, do not cover the recipients plus
	// fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDustChangeOnly is reserved for a caller that requires an
	// explicit change output and cannot accept the leftover being folded
	// into the fee instead. The planner's own Plan never returns it: by
	// design it silently folds a sub-dust leftover into the fee, which is
	// not an error condition for a caller that only asked for change
	// opportunistically.
	ErrDustChangeOnly = errors.New("change amount is dust")

	// ErrChangeAddressUnavailable is returned when the account has no
	// viewing key or address in the chosen change pool.
	ErrChangeAddressUnavailable = errors.New("account has no address in change pool")

	// ErrAddressUndecodable is returned when a recipient address cannot
	// be parsed into a known pool set.
	ErrAddressUndecodable = errors.New("address could not be decoded")

	// ErrAnchorMismatch is returned when a held note's witness root does
	// not match the anchor at the requested checkpoint height. This is
	// fatal: the caller must re-sync before retrying.
	ErrAnchorMismatch = errors.New("witness root does not match checkpoint anchor")

	// ErrChainUnavailable is returned by a ChainSource implementation for
	// a transient I/O failure; callers MAY retry with backoff.
	ErrChainUnavailable = errors.New("chain source unavailable")

	// ErrDataCorruption is returned when decoded bytes fail an internal
	// invariant: a malformed ciphertext that matched an ivk's
	// authentication tag, or a tree shape inconsistency.
	ErrDataCorruption = errors.New("decoded data failed an internal invariant")

	// ErrUsage is returned for caller mistakes: unknown account, empty
	// pool mask, zero confirmations.
	ErrUsage = errors.New("invalid usage")

	// ErrCryptoFailed is returned when a ShieldedProver fails to produce
	// a proof or signature.
	ErrCryptoFailed = errors.New("proving or signing failed")
)

// KindOf classifies err into a Kind, for callers that want to branch on
// category rather than the exact sentinel.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrDustChangeOnly), errors.Is(err, ErrChangeAddressUnavailable):
		return KindFunding
	case errors.Is(err, ErrAddressUndecodable):
		return KindUsage
	case errors.Is(err, ErrUsage):
		return KindUsage
	case errors.Is(err, ErrAnchorMismatch):
		return KindConsistency
	case errors.Is(err, ErrDataCorruption):
		return KindDataCorruption
	case errors.Is(err, ErrChainUnavailable):
		return KindChainUnavailable
	case errors.Is(err, ErrCryptoFailed):
		return KindCrypto
	default:
		// An error this package doesn't recognize is a caller/programming
		// mistake, not a proven on-chain/wallet-state divergence — default
		// to KindUsage rather than implying the caller MUST re-sync.
		return KindUsage
	}
}
