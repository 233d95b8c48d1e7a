// Package chain provides ledger interaction for the bounty service: a
// gateway over an EVM JSON-RPC endpoint, the transaction sequencer that owns
// the signing account's nonce, and typed bindings for the deployed contracts.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of the EVM RPC surface the service uses.
// *ethclient.Client satisfies it; tests substitute a fake.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client is the ledger gateway: one RPC backend, one signing identity, and
// the fixed set of contract bindings.
type Client struct {
	backend   Backend
	key       *ecdsa.PrivateKey
	account   common.Address
	chainID   *big.Int
	network   string
	contracts *Contracts
}

// Config holds gateway configuration.
type Config struct {
	PrivateKeyHex string
	ChainID       uint64
	Network       string
	Contracts     *Contracts
}

// NewClient creates a gateway over an already-dialed backend.
func NewClient(backend Backend, cfg Config) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	if cfg.Contracts == nil {
		return nil, fmt.Errorf("contract bindings required")
	}

	key, err := crypto.HexToECDSA(stripHexPrefix(cfg.PrivateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Client{
		backend:   backend,
		key:       key,
		account:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:   new(big.Int).SetUint64(cfg.ChainID),
		network:   cfg.Network,
		contracts: cfg.Contracts,
	}, nil
}

// Dial connects to the RPC endpoint and builds a gateway over it.
func Dial(rpcURL string, cfg Config) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}
	backend, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, &ConnectivityError{Op: "dial", Err: err}
	}
	return NewClient(backend, cfg)
}

// Account returns the signing identity's address.
func (c *Client) Account() common.Address { return c.account }

// Network returns the configured network name.
func (c *Client) Network() string { return c.network }

// Contracts returns the deployed contract bindings.
func (c *Client) Contracts() *Contracts { return c.contracts }

// Backend exposes the underlying RPC backend for read-only consumers such
// as the event watcher.
func (c *Client) Backend() Backend { return c.backend }

// Call invokes a read-only contract function and returns the unpacked
// result values. No nonce is consumed.
func (c *Client) Call(ctx context.Context, contract *Contract, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return nil, &DecodeError{What: fmt.Sprintf("%s.%s arguments", contract.Name, method), Err: err}
	}

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: c.account,
		To:   &contract.Address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, classifyRPC(fmt.Sprintf("call %s.%s", contract.Name, method), err)
	}

	vals, err := contract.ABI.Unpack(method, raw)
	if err != nil {
		return nil, &DecodeError{What: fmt.Sprintf("%s.%s result", contract.Name, method), Err: err}
	}
	return vals, nil
}

// Ping checks endpoint reachability by asking for the current block height.
func (c *Client) Ping(ctx context.Context) (uint64, error) {
	height, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, classifyRPC("blockNumber", err)
	}
	return height, nil
}

// VerifyChainID confirms the endpoint serves the configured chain. Called
// once at startup; a mismatch means the operator pointed the service at the
// wrong network.
func (c *Client) VerifyChainID(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	remote, err := c.backend.ChainID(ctx)
	if err != nil {
		return classifyRPC("chainId", err)
	}
	if remote.Cmp(c.chainID) != 0 {
		return fmt.Errorf("chain id mismatch: endpoint reports %s, configured %s", remote, c.chainID)
	}
	return nil
}

func stripHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
