package query

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	paidquery "github.com/paidquery/paidquery-go"
	"github.com/paidquery/paidquery-go/encoding"
	pqhttp "github.com/paidquery/paidquery-go/http"
	"github.com/paidquery/paidquery-go/wallet"
)

// Foundry/Anvil first default account. Well-known test key.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testResource = "https://api.example.com/query"

func testRequirements() []paidquery.PaymentRequirements {
	return []paidquery.PaymentRequirements{{
		Scheme:            paidquery.SchemeExact,
		Network:           "base-sepolia",
		MaxAmountRequired: "1000000",
		Resource:          testResource,
		PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		MaxTimeoutSeconds: 300,
		Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Extra: map[string]interface{}{
			"name":    "USDC",
			"version": "2",
		},
	}}
}

func challengeResponse(accepts []paidquery.PaymentRequirements, errMsg string) *Response {
	return &Response{
		Status: http.StatusPaymentRequired,
		Required: &paidquery.PaymentRequired{
			X402Version: paidquery.X402Version,
			Error:       errMsg,
			Accepts:     accepts,
		},
	}
}

func successResponse(body string) *Response {
	return &Response{Status: http.StatusOK, Body: []byte(body)}
}

// sentCall records one Send invocation.
type sentCall struct {
	req    Request
	header string
}

// fakeResource replays scripted responses and records every call.
type fakeResource struct {
	responses []*Response
	calls     []sentCall
}

func (f *fakeResource) Send(ctx context.Context, req Request, paymentHeader string) (*Response, error) {
	f.calls = append(f.calls, sentCall{req: req, header: paymentHeader})
	if len(f.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// connectingResource counts handshakes.
type connectingResource struct {
	fakeResource
	connects int
}

func (c *connectingResource) Connect(ctx context.Context) error {
	c.connects++
	return nil
}

type countingSigner struct {
	inner paidquery.Signer
	calls int
}

func (s *countingSigner) Address() string { return s.inner.Address() }

func (s *countingSigner) SignAuthorization(domain paidquery.DomainParams, auth paidquery.Authorization) (string, error) {
	s.calls++
	return s.inner.SignAuthorization(domain, auth)
}

func testSigner(t *testing.T) *wallet.LocalSigner {
	t.Helper()
	signer, err := wallet.NewLocalSigner(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return signer
}

func TestNewClient_RequiresSigner(t *testing.T) {
	_, err := NewClient(nil)
	if !errors.Is(err, paidquery.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestExecute_NoPaymentNeeded(t *testing.T) {
	signer := &countingSigner{inner: testSigner(t)}
	resource := &fakeResource{responses: []*Response{
		successResponse(`{"rows":[{"count":42}],"rowCount":1,"estimatedCost":0,"actualCost":0,"executionMs":3}`),
	}}

	client, err := NewClient(signer, WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.Execute(context.Background(), testResource, "SELECT count(*) FROM events")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.RowCount != 1 {
		t.Errorf("rowCount = %d, want 1", result.RowCount)
	}
	if signer.calls != 0 {
		t.Errorf("signer invoked %d times for a free query", signer.calls)
	}
	if len(resource.calls) != 1 {
		t.Errorf("resource hit %d times, want 1", len(resource.calls))
	}
}

func TestExecute_PaysAndRetries(t *testing.T) {
	resource := &fakeResource{responses: []*Response{
		challengeResponse(testRequirements(), "payment required"),
		successResponse(`{
			"rows": [{"count": 42}],
			"rowCount": 1,
			"estimatedCost": 1000000,
			"actualCost": 950000,
			"executionMs": 12,
			"settlement": {"transaction": "0xtx1", "network": "base-sepolia"}
		}`),
	}}

	var attempts, successes int
	var successEvent paidquery.PaymentEvent
	client, err := NewClient(testSigner(t),
		WithResourceClient(resource),
		WithPaymentCallbacks(
			func(paidquery.PaymentEvent) { attempts++ },
			func(e paidquery.PaymentEvent) { successes++; successEvent = e },
			nil,
		),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.Execute(context.Background(), testResource, "SELECT count(*) FROM events")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(resource.calls) != 2 {
		t.Fatalf("resource hit %d times, want 2", len(resource.calls))
	}
	if resource.calls[0].header != "" {
		t.Error("phase 1 carried a payment header")
	}
	if resource.calls[1].header == "" {
		t.Fatal("phase 2 carried no payment header")
	}
	if resource.calls[1].req.Statement != resource.calls[0].req.Statement {
		t.Error("retry statement differs from the original")
	}

	// The header must decode to a payload the server could verify.
	payment, err := encoding.DecodePayment(resource.calls[1].header)
	if err != nil {
		t.Fatalf("phase 2 header does not decode: %v", err)
	}
	if payment.Payload.Authorization.Value != "1000000" {
		t.Errorf("authorized value = %s, want 1000000", payment.Payload.Authorization.Value)
	}
	req := testRequirements()[0]
	if _, err := pqhttp.VerifyPayment(&payment, &req, nil, time.Now()); err != nil {
		t.Errorf("payload fails verification: %v", err)
	}

	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(result.Rows))
	}
	if count, _ := result.Rows[0]["count"].(float64); count != 42 {
		t.Errorf("count = %v, want 42", result.Rows[0]["count"])
	}
	if result.TransactionRef() != "0xtx1" {
		t.Errorf("transaction = %q, want 0xtx1", result.TransactionRef())
	}
	if result.ActualCost.String() != "950000" {
		t.Errorf("actualCost = %s, want 950000", result.ActualCost.String())
	}

	if attempts != 1 || successes != 1 {
		t.Errorf("attempts = %d, successes = %d, want 1 and 1", attempts, successes)
	}
	if successEvent.Transaction != "0xtx1" {
		t.Errorf("success event transaction = %q, want 0xtx1", successEvent.Transaction)
	}
	if successEvent.RequestID == "" {
		t.Error("success event missing request id")
	}
}

func TestExecute_EmptyAccepts(t *testing.T) {
	signer := &countingSigner{inner: testSigner(t)}
	resource := &fakeResource{responses: []*Response{
		challengeResponse(nil, "payment required"),
	}}

	client, err := NewClient(signer, WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Execute(context.Background(), testResource, "SELECT 1")
	if !errors.Is(err, paidquery.ErrNoPaymentMethod) {
		t.Errorf("got %v, want ErrNoPaymentMethod", err)
	}
	if signer.calls != 0 {
		t.Errorf("signer invoked %d times on an empty challenge", signer.calls)
	}
	if len(resource.calls) != 1 {
		t.Errorf("resource hit %d times, want 1", len(resource.calls))
	}
}

func TestExecute_RejectsNonSelect(t *testing.T) {
	resource := &fakeResource{}

	client, err := NewClient(testSigner(t), WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	statements := []string{
		"",
		"   ",
		"DELETE FROM events",
		"UPDATE events SET n = 1",
		"INSERT INTO events VALUES (1)",
		"DROP TABLE events",
	}
	for _, statement := range statements {
		_, err := client.Execute(context.Background(), testResource, statement)
		if !errors.Is(err, paidquery.ErrValidation) {
			t.Errorf("Execute(%q) = %v, want ErrValidation", statement, err)
		}
	}

	if len(resource.calls) != 0 {
		t.Errorf("resource hit %d times, want 0 for invalid statements", len(resource.calls))
	}
}

func TestExecute_AllowsCTE(t *testing.T) {
	resource := &fakeResource{responses: []*Response{
		successResponse(`{"rows":[],"rowCount":0,"estimatedCost":0,"actualCost":0,"executionMs":1}`),
	}}

	client, err := NewClient(testSigner(t), WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Execute(context.Background(), testResource,
		"WITH recent AS (SELECT * FROM events) SELECT count(*) FROM recent"); err != nil {
		t.Errorf("CTE statement rejected: %v", err)
	}
}

func TestExecute_EmptyResource(t *testing.T) {
	client, err := NewClient(testSigner(t), WithResourceClient(&fakeResource{}))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Execute(context.Background(), "", "SELECT 1")
	if !errors.Is(err, paidquery.ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestExecute_UserRejection(t *testing.T) {
	declining := wallet.NewApprovalSigner(testSigner(t),
		func(paidquery.DomainParams, paidquery.Authorization) bool { return false })
	resource := &fakeResource{responses: []*Response{
		challengeResponse(testRequirements(), ""),
	}}

	var failures int
	client, err := NewClient(declining,
		WithResourceClient(resource),
		WithPaymentCallbacks(nil, nil, func(paidquery.PaymentEvent) { failures++ }),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Execute(context.Background(), testResource, "SELECT 1")
	if !errors.Is(err, paidquery.ErrUserRejected) {
		t.Errorf("got %v, want ErrUserRejected", err)
	}
	// Declined payments never reach phase 2.
	if len(resource.calls) != 1 {
		t.Errorf("resource hit %d times, want 1", len(resource.calls))
	}
	if failures != 1 {
		t.Errorf("failures = %d, want 1", failures)
	}
}

func TestExecute_SecondChallengeIsRejection(t *testing.T) {
	resource := &fakeResource{responses: []*Response{
		challengeResponse(testRequirements(), ""),
		challengeResponse(testRequirements(), "insufficient funds"),
	}}

	var failureErr error
	client, err := NewClient(testSigner(t),
		WithResourceClient(resource),
		WithPaymentCallbacks(nil, nil, func(e paidquery.PaymentEvent) { failureErr = e.Error }),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Execute(context.Background(), testResource, "SELECT 1")
	if !errors.Is(err, paidquery.ErrPaymentRejected) {
		t.Errorf("got %v, want ErrPaymentRejected", err)
	}
	// Exactly one retry, never a loop.
	if len(resource.calls) != 2 {
		t.Errorf("resource hit %d times, want 2", len(resource.calls))
	}
	if !errors.Is(failureErr, paidquery.ErrPaymentRejected) {
		t.Errorf("failure callback error = %v, want ErrPaymentRejected", failureErr)
	}

	var paymentErr *paidquery.PaymentError
	if errors.As(err, &paymentErr) {
		if paymentErr.Details["server_error"] != "insufficient funds" {
			t.Errorf("server_error detail = %v, want insufficient funds", paymentErr.Details["server_error"])
		}
	} else {
		t.Error("expected a PaymentError")
	}
}

func TestExecute_ConnectsOnce(t *testing.T) {
	resource := &connectingResource{fakeResource: fakeResource{responses: []*Response{
		successResponse(`{"rows":[],"rowCount":0,"estimatedCost":0,"actualCost":0,"executionMs":1}`),
		successResponse(`{"rows":[],"rowCount":0,"estimatedCost":0,"actualCost":0,"executionMs":1}`),
	}}}

	client, err := NewClient(testSigner(t), WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := client.Execute(context.Background(), testResource, "SELECT 1"); err != nil {
			t.Fatalf("Execute %d failed: %v", i, err)
		}
	}

	if resource.connects != 1 {
		t.Errorf("Connect ran %d times, want 1", resource.connects)
	}
}

func TestExecute_HeaderSettlementMerged(t *testing.T) {
	settlementHeader, err := encoding.EncodeSettlement(paidquery.SettleResponse{
		Success:     true,
		Transaction: "0xheader",
		Network:     "base-sepolia",
		Payer:       "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	})
	if err != nil {
		t.Fatalf("EncodeSettlement failed: %v", err)
	}

	resource := &fakeResource{responses: []*Response{
		challengeResponse(testRequirements(), ""),
		{
			Status:          http.StatusOK,
			Body:            []byte(`{"rows":[],"rowCount":0,"estimatedCost":0,"actualCost":0,"executionMs":1}`),
			PaymentResponse: settlementHeader,
		},
	}}

	client, err := NewClient(testSigner(t), WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := client.Execute(context.Background(), testResource, "SELECT 1")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Settlement == nil {
		t.Fatal("expected settlement merged from the response header")
	}
	if result.TransactionRef() != "0xheader" {
		t.Errorf("transaction = %q, want 0xheader", result.TransactionRef())
	}
}

func TestExecute_TransportStatusError(t *testing.T) {
	resource := &fakeResource{responses: []*Response{
		{Status: http.StatusInternalServerError, Body: []byte("boom")},
	}}

	client, err := NewClient(testSigner(t), WithResourceClient(resource))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Execute(context.Background(), testResource, "SELECT 1")
	if err == nil {
		t.Fatal("expected error for a 500 response")
	}
	var paymentErr *paidquery.PaymentError
	if !errors.As(err, &paymentErr) || paymentErr.Code != paidquery.ErrCodeTransport {
		t.Errorf("got %v, want transport PaymentError", err)
	}
}

func TestValidateStatement(t *testing.T) {
	valid := []string{
		"SELECT 1",
		"select * from events",
		"  SELECT 1  ",
		"WITH t AS (SELECT 1) SELECT * FROM t",
	}
	for _, statement := range valid {
		if err := ValidateStatement(statement); err != nil {
			t.Errorf("ValidateStatement(%q) = %v, want nil", statement, err)
		}
	}

	invalid := []string{
		"",
		"   ",
		"DELETE FROM events",
		"TRUNCATE events",
	}
	for _, statement := range invalid {
		if err := ValidateStatement(statement); !errors.Is(err, paidquery.ErrValidation) {
			t.Errorf("ValidateStatement(%q) = %v, want ErrValidation", statement, err)
		}
	}
}
