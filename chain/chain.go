// Package chain is the tooling-side client for a bao-factory registry living
// on a real EVM endpoint. It covers the collaborator surface the deployment
// and verification tooling needs: existence and upgrade checks, operator
// queries, and owner-signed setOperator/upgrade/deploy transactions. The
// registry core itself never imports this package.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/lmittmann/w3"
	"github.com/lmittmann/w3/module/eth"

	"github.com/baofinance/bao-factory/factory"
)

// DeployGasLimit bounds the two-hop deployment call.
const DeployGasLimit uint64 = 1_500_000

var (
	funcOwner             = w3.MustNewFunc("owner()", "address")
	funcLogic             = w3.MustNewFunc("logic()", "address")
	funcIsCurrentOperator = w3.MustNewFunc("isCurrentOperator(address)", "bool")
	funcOperatorAt        = w3.MustNewFunc("operatorAt(uint256)", "address,uint64")
	funcOperatorCount     = w3.MustNewFunc("operatorCount()", "uint256")
	funcPredictAddress    = w3.MustNewFunc("predictAddress(bytes32)", "address")
	funcSetOperator       = w3.MustNewFunc("setOperator(address,uint64)", "")
	funcUpgrade           = w3.MustNewFunc("upgrade(address)", "")
	funcDeploy            = w3.MustNewFunc("deploy(bytes,bytes32)", "address")

	eventDeployed = w3.MustNewEvent("Deployed(address indexed,bytes32 indexed,uint256)")
)

// Client talks to one registry on one chain, signing as a single account.
type Client struct {
	client    *w3.Client
	signer    types.Signer
	key       *ecdsa.PrivateKey
	address   common.Address
	registry  common.Address
	gasFeeCap *big.Int
	gasTipCap *big.Int
}

// Dial connects to rpcURL. The key signs every transaction the client sends;
// gated registry calls succeed only when it controls the owner (or, for
// deploys, an active operator) identity.
func Dial(rpcURL string, chainID int64, registry common.Address, key *ecdsa.PrivateKey, gasFeeCap, gasTipCap *big.Int) (*Client, error) {
	client, err := w3.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{
		client:    client,
		signer:    types.NewLondonSigner(big.NewInt(chainID)),
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		registry:  registry,
		gasFeeCap: gasFeeCap,
		gasTipCap: gasTipCap,
	}, nil
}

func (c *Client) Close() error { return c.client.Close() }

// Address returns the signing account's address.
func (c *Client) Address() common.Address { return c.address }

// Registry returns the registry address this client is bound to.
func (c *Client) Registry() common.Address { return c.registry }

// RegistryExists reports whether code is present at the registry address.
func (c *Client) RegistryExists(ctx context.Context) (bool, error) {
	var code []byte
	if err := c.client.CallCtx(ctx, eth.Code(c.registry, nil).Returns(&code)); err != nil {
		return false, fmt.Errorf("get code: %w", err)
	}
	return len(code) > 0, nil
}

// Logic returns the registry's active logic identity.
func (c *Client) Logic(ctx context.Context) (common.Address, error) {
	var logic common.Address
	if err := c.client.CallCtx(ctx, eth.CallFunc(c.registry, funcLogic).Returns(&logic)); err != nil {
		return common.Address{}, fmt.Errorf("call logic(): %w", err)
	}
	return logic, nil
}

// Owner returns the registry's owner identity.
func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	var owner common.Address
	if err := c.client.CallCtx(ctx, eth.CallFunc(c.registry, funcOwner).Returns(&owner)); err != nil {
		return common.Address{}, fmt.Errorf("call owner(): %w", err)
	}
	return owner, nil
}

// IsCurrentOperator reports whether identity holds an unexpired grant.
func (c *Client) IsCurrentOperator(ctx context.Context, identity common.Address) (bool, error) {
	var active bool
	if err := c.client.CallCtx(ctx, eth.CallFunc(c.registry, funcIsCurrentOperator, identity).Returns(&active)); err != nil {
		return false, fmt.Errorf("call isCurrentOperator(): %w", err)
	}
	return active, nil
}

// Operators enumerates the full operator set in one pass, expired records
// included.
func (c *Client) Operators(ctx context.Context) ([]factory.Operator, error) {
	var count *big.Int
	if err := c.client.CallCtx(ctx, eth.CallFunc(c.registry, funcOperatorCount).Returns(&count)); err != nil {
		return nil, fmt.Errorf("call operatorCount(): %w", err)
	}

	n := int(count.Int64())
	ops := make([]factory.Operator, 0, n)
	for i := 0; i < n; i++ {
		var (
			identity common.Address
			expiry   uint64
		)
		err := c.client.CallCtx(ctx,
			eth.CallFunc(c.registry, funcOperatorAt, big.NewInt(int64(i))).Returns(&identity, &expiry))
		if err != nil {
			return nil, fmt.Errorf("call operatorAt(%d): %w", i, err)
		}
		ops = append(ops, factory.Operator{Identity: identity, Expiry: expiry})
	}
	return ops, nil
}

// PredictAddress asks the registry for the target address of saltHash.
func (c *Client) PredictAddress(ctx context.Context, saltHash common.Hash) (common.Address, error) {
	var predicted common.Address
	err := c.client.CallCtx(ctx,
		eth.CallFunc(c.registry, funcPredictAddress, [32]byte(saltHash)).Returns(&predicted))
	if err != nil {
		return common.Address{}, fmt.Errorf("call predictAddress(): %w", err)
	}
	return predicted, nil
}

// EnsureBootstrap sends the registry's creation transaction through the
// well-known deployer when no code is present at the predicted address yet.
// The deployer's calldata convention is the salt hash followed by the init
// code.
func (c *Client) EnsureBootstrap(ctx context.Context, deployer common.Address, saltHash common.Hash, initCode []byte, gasLimit uint64) (common.Hash, bool, error) {
	exists, err := c.RegistryExists(ctx)
	if err != nil {
		return common.Hash{}, false, err
	}
	if exists {
		return common.Hash{}, false, nil
	}

	calldata := append(saltHash.Bytes(), initCode...)
	txHash, err := c.send(ctx, &deployer, calldata, nil, gasLimit)
	if err != nil {
		return common.Hash{}, false, fmt.Errorf("send bootstrap creation: %w", err)
	}
	return txHash, true, nil
}

// SetOperator sends an owner-signed setOperator transaction.
func (c *Client) SetOperator(ctx context.Context, identity common.Address, delay uint64) (common.Hash, error) {
	calldata, err := funcSetOperator.EncodeArgs(identity, delay)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode setOperator: %w", err)
	}
	return c.send(ctx, &c.registry, calldata, nil, 200_000)
}

// Upgrade sends an owner-signed upgrade transaction.
func (c *Client) Upgrade(ctx context.Context, newLogic common.Address) (common.Hash, error) {
	calldata, err := funcUpgrade.EncodeArgs(newLogic)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode upgrade: %w", err)
	}
	return c.send(ctx, &c.registry, calldata, nil, 200_000)
}

// Deploy sends a deploy transaction carrying value and returns its hash.
// The resulting address comes from the receipt, see DeployedFromReceipt.
func (c *Client) Deploy(ctx context.Context, initCode []byte, saltHash common.Hash, value *big.Int) (common.Hash, error) {
	calldata, err := funcDeploy.EncodeArgs(initCode, [32]byte(saltHash))
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode deploy: %w", err)
	}
	return c.send(ctx, &c.registry, calldata, value, DeployGasLimit)
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		var receipt *types.Receipt
		err := c.client.CallCtx(ctx, eth.TxReceipt(txHash).Returns(&receipt))
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeployedFromReceipt extracts the deployed address and forwarded value from
// the registry's Deployed log.
func DeployedFromReceipt(receipt *types.Receipt) (common.Address, *big.Int, error) {
	for _, log := range receipt.Logs {
		var (
			addr  common.Address
			salt  [32]byte
			value big.Int
		)
		if err := eventDeployed.DecodeArgs(log, &addr, &salt, &value); err == nil {
			return addr, &value, nil
		}
	}
	return common.Address{}, nil, errors.New("Deployed event not found in receipt logs")
}

func (c *Client) nonce(ctx context.Context) (uint64, error) {
	var nonce uint64
	if err := c.client.CallCtx(ctx, eth.Nonce(c.address, nil).Returns(&nonce)); err != nil {
		return 0, fmt.Errorf("get nonce: %w", err)
	}
	return nonce, nil
}

func (c *Client) send(ctx context.Context, to *common.Address, calldata []byte, value *big.Int, gasLimit uint64) (common.Hash, error) {
	nonce, err := c.nonce(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		Nonce:     nonce,
		To:        to,
		Value:     value,
		GasFeeCap: c.gasFeeCap,
		GasTipCap: c.gasTipCap,
		Gas:       gasLimit,
		Data:      calldata,
	})

	signedTx, err := types.SignTx(tx, c.signer, c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.client.CallCtx(ctx, eth.SendTx(signedTx).Returns(nil)); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signedTx.Hash(), nil
}
