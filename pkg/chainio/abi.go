package chainio

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Fragments for the reads the eigensdk registry reader does not expose: the
// full quorum bitmap, the ECDSA stake registry and the WAVS service manager.

const registryCoordinatorABI = `[
	{"type":"function","name":"getCurrentQuorumBitmap","stateMutability":"view","inputs":[{"name":"operatorId","type":"bytes32"}],"outputs":[{"name":"","type":"uint192"}]},
	{"type":"function","name":"serviceManager","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

const stakeRegistryABI = `[
	{"type":"function","name":"getLatestOperatorSigningKey","stateMutability":"view","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getOperatorWeight","stateMutability":"view","inputs":[{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getLastCheckpointThresholdWeight","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"OperatorRegistered","anonymous":false,"inputs":[{"name":"operator","type":"address","indexed":true},{"name":"avs","type":"address","indexed":true}]},
	{"type":"event","name":"OperatorDeregistered","anonymous":false,"inputs":[{"name":"operator","type":"address","indexed":true},{"name":"avs","type":"address","indexed":true}]}
]`

const serviceManagerABI = `[
	{"type":"function","name":"stakeRegistry","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getQuorumThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"numerator","type":"uint256"},{"name":"denominator","type":"uint256"}]},
	{"type":"event","name":"QuorumThresholdUpdated","anonymous":false,"inputs":[{"name":"numerator","type":"uint256","indexed":false},{"name":"denominator","type":"uint256","indexed":false}]}
]`

var (
	RegistryCoordinatorABI = mustParse(registryCoordinatorABI)
	StakeRegistryABI       = mustParse(stakeRegistryABI)
	ServiceManagerABI      = mustParse(serviceManagerABI)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
