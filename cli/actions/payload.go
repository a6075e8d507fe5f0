package actions

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// PayloadFile is the YAML/JSON description of a payload for encode.
type PayloadFile struct {
	TriggerID       types.TriggerID                         `yaml:"trigger_id" json:"trigger_id"`
	ThresholdWeight *types.BigInt                           `yaml:"threshold_weight" json:"threshold_weight"`
	Operators       []types.OperatorRecord                  `yaml:"operators" json:"operators"`
	Quorums         map[types.QuorumNumber][]common.Address `yaml:"quorums" json:"quorums"`
	Numerator       *types.BigInt                           `yaml:"numerator" json:"numerator"`
	Denominator     *types.BigInt                           `yaml:"denominator" json:"denominator"`
}

// Payload builds the payload of the given kind. Quorums are emitted in
// ascending order.
func (f PayloadFile) Payload(kind types.PayloadKind) (types.Payload, error) {
	switch kind {
	case types.PayloadKindFull:
		p := types.FullSyncPayload{TriggerID: f.TriggerID, ThresholdWeight: f.ThresholdWeight.ToBigInt()}
		for _, r := range f.Operators {
			p.Operators = append(p.Operators, r.Operator)
			p.SigningKeys = append(p.SigningKeys, r.SigningKey)
			p.Weights = append(p.Weights, r.Weight.ToBigInt())
		}
		return p, nil
	case types.PayloadKindPerQuorum:
		quorums := make([]int, 0, len(f.Quorums))
		for q := range f.Quorums {
			quorums = append(quorums, int(q))
		}
		sort.Ints(quorums)
		var p types.PerQuorumPayload
		for _, q := range quorums {
			p.QuorumNumbers = append(p.QuorumNumbers, byte(q))
			p.OperatorsPerQuorum = append(p.OperatorsPerQuorum, append([]common.Address{}, f.Quorums[types.QuorumNumber(q)]...))
		}
		return p, nil
	case types.PayloadKindQuorumThreshold:
		return types.QuorumThresholdPayload{
			TriggerID:   f.TriggerID,
			Numerator:   f.Numerator.ToBigInt(),
			Denominator: f.Denominator.ToBigInt(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

// EncodePayloadFile parses a YAML (or JSON) payload description and returns
// its ABI encoding.
func EncodePayloadFile(kind types.PayloadKind, raw []byte) ([]byte, error) {
	var f PayloadFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse payload file: %w", err)
	}
	p, err := f.Payload(kind)
	if err != nil {
		return nil, err
	}
	return codec.Encode(p)
}

// DescribePayload decodes data as kind into its file form.
func DescribePayload(kind types.PayloadKind, data []byte) (*PayloadFile, error) {
	p, err := codec.Decode(kind, data)
	if err != nil {
		return nil, err
	}
	out := &PayloadFile{}
	switch v := p.(type) {
	case types.FullSyncPayload:
		out.TriggerID = v.TriggerID
		out.ThresholdWeight = types.NewBigInt(v.ThresholdWeight)
		out.Operators = v.Records()
	case types.PerQuorumPayload:
		out.Quorums = map[types.QuorumNumber][]common.Address{}
		for i, q := range v.QuorumNumbers {
			out.Quorums[types.QuorumNumber(q)] = v.OperatorsPerQuorum[i]
		}
	case types.QuorumThresholdPayload:
		out.TriggerID = v.TriggerID
		out.Numerator = types.NewBigInt(v.Numerator)
		out.Denominator = types.NewBigInt(v.Denominator)
	}
	return out, nil
}

func Encode(ctx *cli.Context) error {
	kind, err := types.ParsePayloadKind(ctx.String("kind"))
	if err != nil {
		return err
	}
	raw, err := readInput(ctx.String("file"))
	if err != nil {
		return err
	}
	data, err := EncodePayloadFile(kind, raw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.App.Writer, hexString(data))
	return err
}

func Decode(ctx *cli.Context) error {
	kind, err := types.ParsePayloadKind(ctx.String("kind"))
	if err != nil {
		return err
	}
	data, err := parseHex(ctx.String("payload"))
	if err != nil {
		return err
	}
	desc, err := DescribePayload(kind, data)
	if err != nil {
		return err
	}
	return printJSON(ctx, desc)
}

func printJSON(ctx *cli.Context, v any) error {
	enc := json.NewEncoder(ctx.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
