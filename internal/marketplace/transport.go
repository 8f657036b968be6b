package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
)

// Transport performs one remote operation. Implementations translate remote
// faults into *Fault or *AggregateError and transport failures into
// *CommunicationError or ErrTimeout.
type Transport interface {
	Call(ctx context.Context, op string, request interface{}, response interface{}) error
}

type envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Faults []wireFault     `json:"faults,omitempty"`
}

type wireFault struct {
	Code    FaultCode `json:"code"`
	Message string    `json:"message"`
}

// HTTPTransport posts JSON envelopes to the marketplace endpoint
type HTTPTransport struct {
	endpoint string
	client   *http.Client
}

// NewHTTPTransport creates a transport whose requests are traced as external segments
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		endpoint: strings.TrimRight(endpoint, "/"),
		client: &http.Client{
			Timeout:   timeout,
			Transport: newrelic.NewRoundTripper(http.DefaultTransport),
		},
	}
}

// Call posts request to <endpoint>/<op> and decodes the result into response
func (t *HTTPTransport) Call(ctx context.Context, op string, request interface{}, response interface{}) error {
	body, err := json.Marshal(request)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s request", op)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"/"+op, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "failed to build %s request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	if txn := newrelic.FromContext(ctx); txn != nil {
		req = newrelic.RequestWithTransactionContext(req, txn)
	}

	res, err := t.client.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return errors.Wrap(ErrTimeout, op)
		}
		return &CommunicationError{Op: op, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		if isTimeout(ctx, err) {
			return errors.Wrap(ErrTimeout, op)
		}
		return &CommunicationError{Op: op, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &CommunicationError{Op: op, Err: fmt.Errorf("status %d: undecodable body: %w", res.StatusCode, err)}
	}

	if fault := toFault(env.Faults); fault != nil {
		return fault
	}

	if res.StatusCode >= http.StatusBadRequest {
		return &CommunicationError{Op: op, Err: fmt.Errorf("unexpected status %d", res.StatusCode)}
	}

	if response == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, response); err != nil {
		return &CommunicationError{Op: op, Err: fmt.Errorf("undecodable result: %w", err)}
	}
	return nil
}

func toFault(faults []wireFault) error {
	switch len(faults) {
	case 0:
		return nil
	case 1:
		return &Fault{Code: faults[0].Code, Message: faults[0].Message}
	default:
		errs := make([]error, 0, len(faults))
		for _, f := range faults {
			errs = append(errs, &Fault{Code: f.Code, Message: f.Message})
		}
		return &AggregateError{Errors: errs}
	}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
