// Package address implements the deterministic address-derivation algebra
// used by the bao-factory registry. All functions are pure: the same inputs
// always produce the same address, on any machine, which is what lets
// independent parties converge on artifact addresses without coordination.
package address

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// saltedCreationPrefix is the one-byte discriminator separating salted
// creations from ordinary transaction framing in the preimage space.
const saltedCreationPrefix = 0xff

// Salt hashes caller-chosen salt bytes into the fixed-width form used by the
// salted-creation preimage. Every caller must hash salts through this helper
// so predictions agree between environments.
func Salt(b []byte) common.Hash {
	return crypto.Keccak256Hash(b)
}

// InitCodeHash hashes the exact init-code bytes of a payload. Address
// predictions are only as good as the payload capture: the bytes hashed here
// must be bit-identical to the bytes handed to the creation primitive.
func InitCodeHash(code []byte) common.Hash {
	return crypto.Keccak256Hash(code)
}

// SaltedCreation derives the address of an object created by deployer with
// the given salt hash and init-code hash:
//
//	keccak256(0xff ++ deployer ++ saltHash ++ initCodeHash)[12:]
//
// Changing any input, including the payload, changes the result.
func SaltedCreation(deployer common.Address, saltHash, initCodeHash common.Hash) common.Address {
	b := make([]byte, 0, 1+common.AddressLength+2*common.HashLength)
	b = append(b, saltedCreationPrefix)
	b = append(b, deployer.Bytes()...)
	b = append(b, saltHash.Bytes()...)
	b = append(b, initCodeHash.Bytes()...)
	return common.BytesToAddress(crypto.Keccak256(b))
}

// SequencedCreation derives the address of the nonce-th object created by
// creator:
//
//	keccak256(rlp([creator, nonce]))[12:]
//
// The result depends only on the creator and the sequence number, never on
// the created object's payload. Freshly created accounts perform their first
// creation with nonce 1.
func SequencedCreation(creator common.Address, nonce uint64) common.Address {
	enc, err := rlp.EncodeToBytes(struct {
		Creator common.Address
		Nonce   uint64
	}{creator, nonce})
	if err != nil {
		// RLP encoding of a fixed-shape struct cannot fail.
		panic(err)
	}
	return common.BytesToAddress(crypto.Keccak256(enc))
}

// PredictBootstrap composes both derivations: the address a bootstrap
// deployer will occupy once created by wellKnownDeployer with the given salt
// and init code, and the address of the first object that deployer will in
// turn create. Both are known before either object exists.
func PredictBootstrap(wellKnownDeployer common.Address, saltHash, initCodeHash common.Hash) (deployer, firstChild common.Address) {
	deployer = SaltedCreation(wellKnownDeployer, saltHash, initCodeHash)
	firstChild = SequencedCreation(deployer, 1)
	return deployer, firstChild
}
