package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/trigg3rX/triggerx-mirror-sync/pkg/codec"
	pkghttp "github.com/trigg3rX/triggerx-mirror-sync/pkg/http"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/verifier"
)

// BuildSubmission wraps payload in an envelope and signs it with every key.
func BuildSubmission(keys []string, eventID types.EventID, payload []byte, referenceBlock uint32) (*types.SubmitEnvelopeRequest, error) {
	signer, err := verifier.NewSignerFromHex(keys...)
	if err != nil {
		return nil, err
	}
	env := types.Envelope{EventID: eventID, Payload: payload}
	sig, err := signer.SignEnvelope(env, referenceBlock)
	if err != nil {
		return nil, err
	}
	envBytes, err := codec.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}
	sigBytes, err := codec.EncodeSignatureData(sig)
	if err != nil {
		return nil, err
	}
	return &types.SubmitEnvelopeRequest{Envelope: envBytes, SignatureData: sigBytes}, nil
}

func parseEventID(s string) (types.EventID, error) {
	var id types.EventID
	b, err := parseHex(s)
	if err != nil {
		return id, fmt.Errorf("event id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("event id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Sign prints the submission body for a payload, and posts it when --url
// is set.
func Sign(ctx *cli.Context) error {
	keys := splitKeys(ctx.String("keys"))
	if len(keys) == 0 {
		return fmt.Errorf("at least one signing key is required")
	}
	payload, err := parseHex(ctx.String("payload"))
	if err != nil {
		return err
	}
	eventID, err := parseEventID(ctx.String("event-id"))
	if err != nil {
		return err
	}
	block := ctx.Uint64("block")
	if block == 0 || block > 1<<32-1 {
		return fmt.Errorf("reference block must be in [1, 2^32)")
	}

	req, err := BuildSubmission(keys, eventID, payload, uint32(block))
	if err != nil {
		return err
	}

	url := ctx.String("url")
	if url == "" {
		return printJSON(ctx, req)
	}

	client, err := pkghttp.NewClient(nil, logging.NewNoOpLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	var receipt types.SubmitEnvelopeResponse
	if err := client.PostJSON(context.Background(), strings.TrimRight(url, "/")+"/api/v1/envelopes", req, &receipt); err != nil {
		return fmt.Errorf("submission failed: %w", err)
	}
	return printJSON(ctx, receipt)
}

// Inspect prints a mirror's current state.
func Inspect(ctx *cli.Context) error {
	url := ctx.String("url")
	if url == "" {
		return fmt.Errorf("--url is required")
	}
	client, err := pkghttp.NewClient(nil, logging.NewNoOpLogger())
	if err != nil {
		return err
	}
	defer client.Close()

	var state types.MirrorStateResponse
	if err := client.GetJSON(context.Background(), strings.TrimRight(url, "/")+"/api/v1/state", &state); err != nil {
		return fmt.Errorf("failed to fetch state: %w", err)
	}
	return printJSON(ctx, state)
}
