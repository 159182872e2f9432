package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/spbu-ds-practicum-2025/loan-service/internal/domain"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/httpapi"
	"github.com/spbu-ds-practicum-2025/loan-service/internal/memstore"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// newTestServer wires the router to an in-memory loan service whose clock
// reads 2022-02-20, the first due date of a loan processed on 2022-01-20.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	clock := fixedClock{now: time.Date(2022, 2, 20, 10, 0, 0, 0, time.UTC)}
	store := memstore.New()
	service := domain.NewLoanService(store.Loans(), store.Installments(), store.Payments(), store, clock, logger, nil)

	server := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(service, nil, clock, logger)))
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func createLoan(t *testing.T, server *httptest.Server, borrowerID uuid.UUID) httpapi.LoanDetailsResponse {
	t.Helper()
	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/loans", map[string]any{
		"borrowerId":   borrowerID,
		"amount":       5000,
		"currencyCode": "TRY",
		"terms":        3,
		"processedAt":  "2022-01-20",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", resp.StatusCode)
	}
	return decode[httpapi.LoanDetailsResponse](t, resp)
}

func TestCreateLoan_Success(t *testing.T) {
	server := newTestServer(t)
	borrowerID := uuid.New()

	loan := createLoan(t, server, borrowerID)

	if loan.BorrowerID != borrowerID || loan.Principal != 5000 || loan.OutstandingAmount != 5000 {
		t.Errorf("unexpected loan %+v", loan.LoanResponse)
	}
	if loan.Status != "DUE" || loan.Terms != 3 || loan.CurrencyCode != "TRY" {
		t.Errorf("unexpected loan attributes %+v", loan.LoanResponse)
	}

	expected := []struct {
		due    string
		amount int64
	}{
		{"2022-02-20", 1666},
		{"2022-03-20", 1666},
		{"2022-04-20", 1668},
	}
	if len(loan.Installments) != len(expected) {
		t.Fatalf("expected %d installments, got %d", len(expected), len(loan.Installments))
	}
	for i, inst := range loan.Installments {
		if inst.DueDate != expected[i].due || inst.Amount != expected[i].amount || inst.Status != "DUE" {
			t.Errorf("installment %d: expected %s/%d/DUE, got %s/%d/%s",
				i+1, expected[i].due, expected[i].amount, inst.DueDate, inst.Amount, inst.Status)
		}
	}
	if len(loan.Payments) != 0 {
		t.Errorf("expected no payments, got %d", len(loan.Payments))
	}
}

func TestCreateLoan_Errors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name         string
		body         any
		expectedCode int
		errorCode    string
	}{
		{
			name:         "malformed body",
			body:         `{"borrowerId":`,
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_REQUEST",
		},
		{
			name:         "missing borrower",
			body:         map[string]any{"amount": 5000, "currencyCode": "TRY", "terms": 3},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_REQUEST",
		},
		{
			name:         "invalid term count",
			body:         map[string]any{"borrowerId": uuid.New(), "amount": 5000, "currencyCode": "TRY", "terms": 4},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_ARGUMENT",
		},
		{
			name:         "unsupported currency",
			body:         map[string]any{"borrowerId": uuid.New(), "amount": 5000, "currencyCode": "GBP", "terms": 3},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_ARGUMENT",
		},
		{
			name:         "non-positive amount",
			body:         map[string]any{"borrowerId": uuid.New(), "amount": 0, "currencyCode": "TRY", "terms": 6},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_ARGUMENT",
		},
		{
			name:         "bad processedAt",
			body:         map[string]any{"borrowerId": uuid.New(), "amount": 5000, "currencyCode": "TRY", "terms": 3, "processedAt": "20/01/2022"},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/loans", tt.body)
			if resp.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, resp.StatusCode)
			}
			errResp := decode[httpapi.BaseError](t, resp)
			if errResp.Code != tt.errorCode {
				t.Errorf("expected error code %s, got %s", tt.errorCode, errResp.Code)
			}
			if errResp.Id == uuid.Nil {
				t.Error("expected error id to be set")
			}
		})
	}
}

func TestApplyRepayment(t *testing.T) {
	server := newTestServer(t)
	loan := createLoan(t, server, uuid.New())
	repaymentsURL := server.URL + "/api/v1/loans/" + loan.ID.String() + "/repayments"

	// receivedAt omitted: the clock's today is the first due date
	resp := doJSON(t, http.MethodPost, repaymentsURL, map[string]any{"amount": 2000, "currencyCode": "TRY"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	updated := decode[httpapi.LoanResponse](t, resp)
	if updated.OutstandingAmount != 3000 || updated.Status != "DUE" {
		t.Errorf("expected 3000/DUE, got %d/%s", updated.OutstandingAmount, updated.Status)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/loans/"+loan.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	details := decode[httpapi.LoanDetailsResponse](t, resp)
	gotStatuses := []string{details.Installments[0].Status, details.Installments[1].Status, details.Installments[2].Status}
	wantStatuses := []string{"REPAID", "PARTIAL", "DUE"}
	for i := range wantStatuses {
		if gotStatuses[i] != wantStatuses[i] {
			t.Errorf("installment %d: expected %s, got %s", i+1, wantStatuses[i], gotStatuses[i])
		}
	}
	if details.Installments[1].OutstandingAmount != 1332 {
		t.Errorf("expected second installment outstanding 1332, got %d", details.Installments[1].OutstandingAmount)
	}
	if len(details.Payments) != 1 || details.Payments[0].ReceivedAt != "2022-02-20" {
		t.Errorf("expected one payment received 2022-02-20, got %+v", details.Payments)
	}

	tests := []struct {
		name         string
		body         any
		expectedCode int
		errorCode    string
	}{
		{
			name:         "overpayment",
			body:         map[string]any{"amount": 3001, "currencyCode": "TRY", "receivedAt": "2022-03-20"},
			expectedCode: http.StatusConflict,
			errorCode:    "OVERPAYMENT",
		},
		{
			name:         "currency mismatch",
			body:         map[string]any{"amount": 100, "currencyCode": "EUR", "receivedAt": "2022-03-20"},
			expectedCode: http.StatusBadRequest,
			errorCode:    "INVALID_ARGUMENT",
		},
		{
			name:         "no installment on date",
			body:         map[string]any{"amount": 100, "currencyCode": "TRY", "receivedAt": "2022-03-21"},
			expectedCode: http.StatusInternalServerError,
			errorCode:    "SCHEDULE_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, repaymentsURL, tt.body)
			if resp.StatusCode != tt.expectedCode {
				t.Fatalf("expected status %d, got %d", tt.expectedCode, resp.StatusCode)
			}
			if errResp := decode[httpapi.BaseError](t, resp); errResp.Code != tt.errorCode {
				t.Errorf("expected error code %s, got %s", tt.errorCode, errResp.Code)
			}
		})
	}

	resp = doJSON(t, http.MethodPost, repaymentsURL, map[string]any{"amount": 3000, "currencyCode": "TRY", "receivedAt": "2022-03-20T09:15:00Z"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if closed := decode[httpapi.LoanResponse](t, resp); closed.Status != "REPAID" || closed.OutstandingAmount != 0 {
		t.Errorf("expected 0/REPAID, got %d/%s", closed.OutstandingAmount, closed.Status)
	}

	resp = doJSON(t, http.MethodPost, repaymentsURL, map[string]any{"amount": 1, "currencyCode": "TRY", "receivedAt": "2022-04-20"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.StatusCode)
	}
	if errResp := decode[httpapi.BaseError](t, resp); errResp.Code != "ALREADY_REPAID" {
		t.Errorf("expected ALREADY_REPAID, got %s", errResp.Code)
	}
}

func TestGetLoan_Errors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name         string
		path         string
		expectedCode int
	}{
		{name: "unknown loan", path: "/api/v1/loans/" + uuid.New().String(), expectedCode: http.StatusNotFound},
		{name: "malformed id", path: "/api/v1/loans/not-a-uuid", expectedCode: http.StatusBadRequest},
		{name: "repayment on unknown loan", path: "/api/v1/loans/" + uuid.New().String() + "/repayments", expectedCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			var body any
			if tt.name == "repayment on unknown loan" {
				method = http.MethodPost
				body = map[string]any{"amount": 100, "currencyCode": "TRY"}
			}
			resp := doJSON(t, method, server.URL+tt.path, body)
			if resp.StatusCode != tt.expectedCode {
				t.Errorf("expected status %d, got %d", tt.expectedCode, resp.StatusCode)
			}
		})
	}
}

func TestListBorrowerLoansAndDueInstallments(t *testing.T) {
	server := newTestServer(t)
	borrowerID := uuid.New()
	first := createLoan(t, server, borrowerID)
	createLoan(t, server, borrowerID)
	createLoan(t, server, uuid.New())

	resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/borrowers/"+borrowerID.String()+"/loans", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if loans := decode[httpapi.ListResponse[httpapi.LoanResponse]](t, resp); len(loans.Content) != 2 {
		t.Errorf("expected 2 loans, got %d", len(loans.Content))
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/api/v1/loans/"+first.ID.String()+"/repayments",
		map[string]any{"amount": 1666, "currencyCode": "TRY", "receivedAt": "2022-03-20"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/installments/due?date=2022-03-20", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	due := decode[httpapi.ListResponse[httpapi.DueInstallmentResponse]](t, resp)
	if len(due.Content) != 2 {
		t.Fatalf("expected 2 open installments, got %d", len(due.Content))
	}
	for _, inst := range due.Content {
		if inst.LoanID == first.ID {
			t.Errorf("repaid installment of loan %s listed as due", first.ID)
		}
		if inst.DueDate != "2022-03-20" {
			t.Errorf("expected due date 2022-03-20, got %s", inst.DueDate)
		}
	}

	// Without a date the clock's today (2022-02-20) is used
	resp = doJSON(t, http.MethodGet, server.URL+"/api/v1/installments/due", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if today := decode[httpapi.ListResponse[httpapi.DueInstallmentResponse]](t, resp); len(today.Content) != 3 {
		t.Errorf("expected 3 installments due today, got %d", len(today.Content))
	}
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func TestHealth_StoreUnavailable(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := httpapi.NewHandler(nil, nil, nil, logger).WithHealthCheck(failingPinger{})
	server := httptest.NewServer(httpapi.NewRouter(handler))
	defer server.Close()

	resp := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.StatusCode)
	}
	if body := decode[map[string]string](t, resp); body["status"] != "unavailable" {
		t.Errorf("expected status unavailable, got %v", body)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
}
