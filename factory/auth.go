package factory

import "github.com/ethereum/go-ethereum/common"

// AccessLevel names the two tiers of the authorization model.
type AccessLevel int

const (
	// OwnerOnly gates operator management and logic upgrades.
	OwnerOnly AccessLevel = iota
	// OwnerOrOperator gates deployments.
	OwnerOrOperator
)

// authorize approves or denies caller for the required level. The owner
// comparison runs first because it is the cheap constant-time check; the
// ordering carries no other meaning. Denial is always the bare
// ErrUnauthorized, whatever the reason.
func (s *state) authorize(caller common.Address, level AccessLevel, now uint64) error {
	if caller == s.Owner {
		return nil
	}
	if level == OwnerOrOperator && s.isActiveOperator(caller, now) {
		return nil
	}
	return ErrUnauthorized
}
