package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkghttp "github.com/trigg3rX/triggerx-mirror-sync/pkg/http"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/logging"
	"github.com/trigg3rX/triggerx-mirror-sync/pkg/types"
)

// RejectedError is a submission the destination refused.
type RejectedError struct {
	Destination string
	StatusCode  int
	Kind        string
	Message     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("destination %s rejected update (%d %s): %s", e.Destination, e.StatusCode, e.Kind, e.Message)
}

func IsStale(err error) bool {
	var re *RejectedError
	return errors.As(err, &re) && re.Kind == types.ErrorKindStaleOrDuplicateTrigger
}

// DestinationClient talks to one mirror node's HTTP API.
type DestinationClient interface {
	Submit(ctx context.Context, envelope, signatureData []byte) (*types.SubmitEnvelopeResponse, error)
	State(ctx context.Context) (*types.MirrorStateResponse, error)
}

type httpDestination struct {
	name    string
	baseURL string
	client  pkghttp.ClientInterface
	logger  logging.Logger
}

func NewDestinationClient(dest Destination, client pkghttp.ClientInterface, logger logging.Logger) DestinationClient {
	return &httpDestination{
		name:    dest.Name,
		baseURL: strings.TrimRight(dest.URL, "/"),
		client:  client,
		logger:  logger.With("destination", dest.Name),
	}
}

func (d *httpDestination) Submit(ctx context.Context, envelope, signatureData []byte) (*types.SubmitEnvelopeResponse, error) {
	req := types.SubmitEnvelopeRequest{Envelope: envelope, SignatureData: signatureData}
	var resp types.SubmitEnvelopeResponse
	if err := d.client.PostJSON(ctx, d.baseURL+"/api/v1/envelopes", req, &resp); err != nil {
		return nil, d.classify(err)
	}
	return &resp, nil
}

func (d *httpDestination) State(ctx context.Context) (*types.MirrorStateResponse, error) {
	var resp types.MirrorStateResponse
	if err := d.client.GetJSON(ctx, d.baseURL+"/api/v1/state", &resp); err != nil {
		return nil, d.classify(err)
	}
	return &resp, nil
}

// classify turns a 4xx carrying an ErrorResponse into a RejectedError.
func (d *httpDestination) classify(err error) error {
	var se *pkghttp.StatusError
	if !errors.As(err, &se) || se.Retryable() {
		return fmt.Errorf("destination %s: %w", d.name, err)
	}
	var body types.ErrorResponse
	if jerr := json.Unmarshal(se.Body, &body); jerr != nil || body.Kind == "" {
		return &RejectedError{Destination: d.name, StatusCode: se.StatusCode, Kind: types.ErrorKindInternal, Message: string(se.Body)}
	}
	return &RejectedError{Destination: d.name, StatusCode: se.StatusCode, Kind: body.Kind, Message: body.Error}
}
