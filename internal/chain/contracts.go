package chain

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract pairs a deployed address with its known function and event
// signatures.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// Contracts is the fixed set of deployed contracts the service talks to.
type Contracts struct {
	Registry *Contract // SubmissionRegistry
	Manager  *Contract // VerificationManager
	Pool     *Contract // BountyPool
	Token    *Contract // stablecoin (6 decimals)
}

// Deployment mirrors the deployment-address file written by the contract
// deploy script. Loaded once at startup, never mutated at runtime.
type Deployment struct {
	Network             string `json:"network"`
	SubmissionRegistry  string `json:"submissionRegistry"`
	VerificationManager string `json:"verificationManager"`
	BountyPool          string `json:"bountyPool"`
	MockUSDT            string `json:"mockUSDT"`
	MockUSDC            string `json:"mockUSDC"` // legacy key written by older deploy scripts
}

// LoadDeployment reads and validates the deployment-address file.
func LoadDeployment(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment file: %w", err)
	}

	var dep Deployment
	if err := json.Unmarshal(data, &dep); err != nil {
		return nil, fmt.Errorf("parse deployment file: %w", err)
	}

	if dep.MockUSDT == "" {
		dep.MockUSDT = dep.MockUSDC
	}

	missing := []string{}
	for name, addr := range map[string]string{
		"submissionRegistry":  dep.SubmissionRegistry,
		"verificationManager": dep.VerificationManager,
		"bountyPool":          dep.BountyPool,
		"mockUSDT":            dep.MockUSDT,
	} {
		if !common.IsHexAddress(addr) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("deployment file %s: missing or invalid addresses: %v", path, missing)
	}
	return &dep, nil
}

// NewContracts builds the binding set from a deployment record.
func NewContracts(dep *Deployment) (*Contracts, error) {
	registry, err := newContract("SubmissionRegistry", dep.SubmissionRegistry, submissionRegistryABI)
	if err != nil {
		return nil, err
	}
	manager, err := newContract("VerificationManager", dep.VerificationManager, verificationManagerABI)
	if err != nil {
		return nil, err
	}
	pool, err := newContract("BountyPool", dep.BountyPool, bountyPoolABI)
	if err != nil {
		return nil, err
	}
	token, err := newContract("MockUSDT", dep.MockUSDT, erc20ABI)
	if err != nil {
		return nil, err
	}

	return &Contracts{Registry: registry, Manager: manager, Pool: pool, Token: token}, nil
}

func newContract(name, address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse %s ABI: %w", name, err)
	}
	return &Contract{
		Name:    name,
		Address: common.HexToAddress(address),
		ABI:     parsed,
	}, nil
}

// Contract ABIs, reduced to the functions and events this service uses.

const submissionRegistryABI = `[
  {"type":"function","name":"registerSubmission","stateMutability":"nonpayable",
   "inputs":[{"name":"contentHash","type":"string"},{"name":"uri","type":"string"},{"name":"mime","type":"string"}],
   "outputs":[{"name":"id","type":"uint256"}]},
  {"type":"function","name":"getSubmission","stateMutability":"view",
   "inputs":[{"name":"id","type":"uint256"}],
   "outputs":[{"name":"submitter","type":"address"},{"name":"contentHash","type":"string"},
              {"name":"uri","type":"string"},{"name":"mimeType","type":"string"},{"name":"timestamp","type":"uint256"}]},
  {"type":"event","name":"SubmissionRegistered","anonymous":false,
   "inputs":[{"name":"id","type":"uint256","indexed":true},{"name":"submitter","type":"address","indexed":true},
             {"name":"contentHash","type":"string","indexed":false},{"name":"uri","type":"string","indexed":false},
             {"name":"mime","type":"string","indexed":false}]}
]`

const verificationManagerABI = `[
  {"type":"function","name":"setVerification","stateMutability":"nonpayable",
   "inputs":[{"name":"submissionId","type":"uint256"},{"name":"accepted","type":"bool"},{"name":"reasonCode","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"getVerification","stateMutability":"view",
   "inputs":[{"name":"submissionId","type":"uint256"}],
   "outputs":[{"name":"verifier","type":"address"},{"name":"accepted","type":"bool"},
              {"name":"reasonCode","type":"uint256"},{"name":"timestamp","type":"uint256"}]},
  {"type":"event","name":"SubmissionVerified","anonymous":false,
   "inputs":[{"name":"submissionId","type":"uint256","indexed":true},{"name":"accepted","type":"bool","indexed":false},
             {"name":"verifier","type":"address","indexed":true},{"name":"reasonCode","type":"uint256","indexed":false}]}
]`

const bountyPoolABI = `[
  {"type":"function","name":"fundBounty","stateMutability":"nonpayable",
   "inputs":[{"name":"bountyId","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"markClaimable","stateMutability":"nonpayable",
   "inputs":[{"name":"submissionId","type":"uint256"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"claim","stateMutability":"nonpayable",
   "inputs":[{"name":"submissionId","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[]},
  {"type":"function","name":"getClaimable","stateMutability":"view",
   "inputs":[{"name":"submissionId","type":"uint256"}],
   "outputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"},{"name":"claimed","type":"bool"}]},
  {"type":"function","name":"getBountyBalance","stateMutability":"view",
   "inputs":[{"name":"bountyId","type":"uint256"}],
   "outputs":[{"name":"balance","type":"uint256"}]},
  {"type":"event","name":"BountyFunded","anonymous":false,
   "inputs":[{"name":"bountyId","type":"uint256","indexed":true},{"name":"amount","type":"uint256","indexed":false},
             {"name":"funder","type":"address","indexed":true}]},
  {"type":"event","name":"ClaimableSet","anonymous":false,
   "inputs":[{"name":"submissionId","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"PayoutClaimed","anonymous":false,
   "inputs":[{"name":"submissionId","type":"uint256","indexed":true},{"name":"recipient","type":"address","indexed":true},
             {"name":"amount","type":"uint256","indexed":false}]}
]`

const erc20ABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"ok","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"balance","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`
