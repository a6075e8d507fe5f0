package codec

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

type envelopeTuple struct {
	EventId  [20]byte
	Ordering [12]byte
	Payload  []byte
}

type signatureDataTuple struct {
	Signers        []common.Address
	Signatures     [][]byte
	ReferenceBlock uint32
}

func EncodeEnvelope(e types.Envelope) ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = []byte{}
	}
	return envelopeArgs.Pack(envelopeTuple{
		EventId:  e.EventID,
		Ordering: e.Ordering,
		Payload:  payload,
	})
}

func DecodeEnvelope(data []byte) (types.Envelope, error) {
	t, err := unpackTuple[envelopeTuple](envelopeArgs, data, "envelope")
	if err != nil {
		return types.Envelope{}, err
	}
	if err := requireCanonical(envelopeArgs, t, data, "envelope"); err != nil {
		return types.Envelope{}, err
	}
	return types.Envelope{EventID: t.EventId, Ordering: t.Ordering, Payload: t.Payload}, nil
}

func EncodeSignatureData(s types.SignatureData) ([]byte, error) {
	if len(s.Signers) != len(s.Signatures) {
		return nil, decodeErrorf("signers/signatures length mismatch (%d/%d)", len(s.Signers), len(s.Signatures))
	}
	sigs := s.Signatures
	if sigs == nil {
		sigs = [][]byte{}
	}
	return signatureDataArgs.Pack(signatureDataTuple{
		Signers:        nonNilAddrs(s.Signers),
		Signatures:     sigs,
		ReferenceBlock: s.ReferenceBlock,
	})
}

func DecodeSignatureData(data []byte) (types.SignatureData, error) {
	t, err := unpackTuple[signatureDataTuple](signatureDataArgs, data, "signature data")
	if err != nil {
		return types.SignatureData{}, err
	}
	if len(t.Signers) != len(t.Signatures) {
		return types.SignatureData{}, decodeErrorf("signers/signatures length mismatch (%d/%d)", len(t.Signers), len(t.Signatures))
	}
	if err := requireCanonical(signatureDataArgs, t, data, "signature data"); err != nil {
		return types.SignatureData{}, err
	}
	return types.SignatureData{
		Signers:        t.Signers,
		Signatures:     t.Signatures,
		ReferenceBlock: t.ReferenceBlock,
	}, nil
}

// EnvelopeDigest is keccak256(abi.encode(envelope)).
func EnvelopeDigest(e types.Envelope) (common.Hash, error) {
	encoded, err := EncodeEnvelope(e)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// SigningDigest is the EIP-191 personal-message hash of the envelope digest,
// the value every signer signs and the verifier recovers against.
func SigningDigest(e types.Envelope) (common.Hash, error) {
	digest, err := EnvelopeDigest(e)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(accounts.TextHash(digest.Bytes())), nil
}
