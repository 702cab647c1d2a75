package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/encoding"
	"github.com/paidquery/paidquery-go/internal/helpers"
)

// Request describes one metered query to send.
type Request struct {
	// Resource is the URL of the metered resource.
	Resource string

	// Statement is the SQL statement to execute.
	Statement string
}

// Response is what the resource server answered with. Status distinguishes
// "payment required" from success from other statuses; Required is populated
// only on a 402.
type Response struct {
	// Status is the HTTP status code.
	Status int

	// Body is the raw response body.
	Body []byte

	// Required is the decoded accepted-methods envelope on a 402.
	Required *paidquery.PaymentRequired

	// PaymentResponse is the raw X-Payment-Response header value, if any.
	PaymentResponse string
}

// ResourceClient performs the actual I/O for the orchestrator. Transport
// errors are returned verbatim and never retried by the payment layer;
// timeout and cancellation policy belong here, via the context.
type ResourceClient interface {
	// Send issues the request, attaching paymentHeader as the X-Payment
	// header when non-empty.
	Send(ctx context.Context, req Request, paymentHeader string) (*Response, error)
}

// Connecter is an optional handshake a ResourceClient may require before
// the first send. The orchestrator performs it at most once per instance.
type Connecter interface {
	Connect(ctx context.Context) error
}

// HTTPResourceClient sends metered queries over HTTP: the statement goes as
// a JSON body, the payment payload as the X-Payment header.
type HTTPResourceClient struct {
	// Client is the underlying HTTP client (http.DefaultClient if nil).
	Client *http.Client
}

type queryBody struct {
	Statement string `json:"statement"`
}

// Send implements ResourceClient.
func (c *HTTPResourceClient) Send(ctx context.Context, req Request, paymentHeader string) (*Response, error) {
	httpClient := c.Client
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	body, err := json.Marshal(queryBody{Statement: req.Statement})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Resource, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if paymentHeader != "" {
		httpReq.Header.Set(helpers.PaymentHeader, paymentHeader)
	}

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	resp := &Response{
		Status:          httpResp.StatusCode,
		Body:            respBody,
		PaymentResponse: httpResp.Header.Get(helpers.PaymentResponseHeader),
	}

	if httpResp.StatusCode == http.StatusPaymentRequired {
		required, err := encoding.DecodeRequired(respBody)
		if err != nil {
			return nil, paidquery.NewPaymentError(paidquery.ErrCodeDecode,
				"failed to decode payment challenge", err)
		}
		resp.Required = &required
	}

	return resp, nil
}
