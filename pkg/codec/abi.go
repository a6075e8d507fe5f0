package codec

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
)

func mustTuple(components ...abi.ArgumentMarshaling) abi.Arguments {
	t, err := abi.NewType("tuple", "", components)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

// Every payload is encoded the way Solidity's abi.encode(struct) does it: one
// tuple argument, so dynamic tuples carry a leading 0x20 offset word.
var (
	fullSyncArgs = mustTuple(
		abi.ArgumentMarshaling{Name: "triggerId", Type: "uint64"},
		abi.ArgumentMarshaling{Name: "thresholdWeight", Type: "uint256"},
		abi.ArgumentMarshaling{Name: "operators", Type: "address[]"},
		abi.ArgumentMarshaling{Name: "signingKeyAddresses", Type: "address[]"},
		abi.ArgumentMarshaling{Name: "weights", Type: "uint256[]"},
	)

	perQuorumArgs = mustTuple(
		abi.ArgumentMarshaling{Name: "operatorsPerQuorum", Type: "address[][]"},
		abi.ArgumentMarshaling{Name: "quorumNumbers", Type: "bytes"},
	)

	quorumThresholdArgs = mustTuple(
		abi.ArgumentMarshaling{Name: "triggerId", Type: "uint64"},
		abi.ArgumentMarshaling{Name: "numerator", Type: "uint256"},
		abi.ArgumentMarshaling{Name: "denominator", Type: "uint256"},
	)

	envelopeArgs = mustTuple(
		abi.ArgumentMarshaling{Name: "eventId", Type: "bytes20"},
		abi.ArgumentMarshaling{Name: "ordering", Type: "bytes12"},
		abi.ArgumentMarshaling{Name: "payload", Type: "bytes"},
	)

	signatureDataArgs = mustTuple(
		abi.ArgumentMarshaling{Name: "signers", Type: "address[]"},
		abi.ArgumentMarshaling{Name: "signatures", Type: "bytes[]"},
		abi.ArgumentMarshaling{Name: "referenceBlock", Type: "uint32"},
	)
)
