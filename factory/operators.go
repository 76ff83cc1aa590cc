package factory

import "github.com/ethereum/go-ethereum/common"

// MaxOperatorDelay caps operator grants at 100 * 52 weeks of seconds. The cap
// keeps now+delay far from arithmetic overflow and bounds the lifetime of a
// forgotten or compromised grant.
const MaxOperatorDelay uint64 = 100 * 52 * 7 * 24 * 60 * 60

func (s *state) findOperator(identity common.Address) int {
	for i := range s.Operators {
		if s.Operators[i].Identity == identity {
			return i
		}
	}
	return -1
}

// isActiveOperator reports whether identity holds an unexpired grant. The
// expiry instant itself does not count: a grant with Expiry == now is dead.
func (s *state) isActiveOperator(identity common.Address, now uint64) bool {
	i := s.findOperator(identity)
	return i >= 0 && s.Operators[i].Expiry > now
}

// removeOperator drops identity's record by swapping the last record into its
// slot, so removal may relocate another record's index. Reports whether a
// record existed.
func (s *state) removeOperator(identity common.Address) bool {
	i := s.findOperator(identity)
	if i < 0 {
		return false
	}
	last := len(s.Operators) - 1
	s.Operators[i] = s.Operators[last]
	s.Operators = s.Operators[:last]
	return true
}

// upsertOperator sets identity's expiry, overwriting an existing record
// rather than creating a second one.
func (s *state) upsertOperator(identity common.Address, expiry uint64) {
	if i := s.findOperator(identity); i >= 0 {
		s.Operators[i].Expiry = expiry
		return
	}
	s.Operators = append(s.Operators, Operator{Identity: identity, Expiry: expiry})
}
