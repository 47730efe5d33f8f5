package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/rentledger/internal/audit/domain"
	"github.com/smallbiznis/rentledger/internal/clock"
	"github.com/smallbiznis/rentledger/internal/config"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
	ledgerrepository "github.com/smallbiznis/rentledger/internal/ledger/repository"
	obsmetrics "github.com/smallbiznis/rentledger/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/rentledger/internal/payment/domain"
	paymentservice "github.com/smallbiznis/rentledger/internal/payment/service"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	reconciliationservice "github.com/smallbiznis/rentledger/internal/reconciliation/service"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
	referencerepository "github.com/smallbiznis/rentledger/internal/reference/repository"
	referenceservice "github.com/smallbiznis/rentledger/internal/reference/service"
	taxservice "github.com/smallbiznis/rentledger/internal/tax/service"
	dbtest "github.com/smallbiznis/rentledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var may2025 = time.Date(2025, time.May, 14, 9, 30, 0, 0, time.UTC)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) GetLedgerDocument(ctx context.Context, id snowflake.ID) (reconciliationdomain.LedgerDocumentDetail, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(reconciliationdomain.LedgerDocumentDetail), args.Error(1)
}

func (m *mockReconciler) RecordPayment(ctx context.Context, req reconciliationdomain.RecordPaymentRequest) (reconciliationdomain.RecordPaymentResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(reconciliationdomain.RecordPaymentResult), args.Error(1)
}

func (m *mockReconciler) GenerateLedgerDocument(ctx context.Context, req reconciliationdomain.GenerateRequest) (ledgerdomain.LedgerDocument, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledgerdomain.LedgerDocument), args.Error(1)
}

func (m *mockReconciler) CreateBill(ctx context.Context, req reconciliationdomain.CreateBillRequest) (ledgerdomain.LedgerDocument, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ledgerdomain.LedgerDocument), args.Error(1)
}

func (m *mockReconciler) DeleteLedgerDocument(ctx context.Context, id snowflake.ID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockReconciler) CancelLedgerDocument(ctx context.Context, id snowflake.ID) (ledgerdomain.LedgerDocument, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ledgerdomain.LedgerDocument), args.Error(1)
}

func (m *mockReconciler) SweepOverdue(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewEngine(EngineParams{
		Config:      config.Config{Environment: "test"},
		HTTPMetrics: obsmetrics.NewHTTPMetrics(prometheus.NewRegistry(), obsmetrics.Config{}),
	})
}

func newMockServer(t *testing.T) (*gin.Engine, *mockReconciler) {
	t.Helper()
	engine := newTestEngine()
	reconciler := &mockReconciler{}
	NewServer(ServerParams{
		Engine:     engine,
		Reconciler: reconciler,
		Calculator: taxservice.NewCalculator(),
		Clock:      clock.NewFakeClock(may2025),
	})
	t.Cleanup(func() { reconciler.AssertExpectations(t) })
	return engine, reconciler
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func TestRecordPayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		errType  string
		errField string
	}{
		{name: "not_found", err: reconciliationdomain.ErrNotFound, status: http.StatusNotFound, errType: "not_found"},
		{name: "not_payable", err: paymentdomain.ErrDocumentNotPayable, status: http.StatusUnprocessableEntity, errType: "document_not_payable"},
		{name: "invalid_amount", err: paymentdomain.ErrInvalidPaymentAmount, status: http.StatusBadRequest, errType: "validation_error", errField: "amount"},
		{
			name:    "conflict",
			err:     fmt.Errorf("%w: %v", reconciliationdomain.ErrPaymentConflict, errors.New("serialization failure")),
			status:  http.StatusConflict,
			errType: "conflict",
		},
		{
			name:    "references_exhausted",
			err:     fmt.Errorf("claim reference: %w", referencedomain.ErrReferenceNumberExhausted),
			status:  http.StatusServiceUnavailable,
			errType: "service_unavailable",
		},
		{name: "unexpected", err: errors.New("disk on fire"), status: http.StatusInternalServerError, errType: "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, reconciler := newMockServer(t)
			reconciler.On("RecordPayment", mock.Anything, mock.Anything).
				Return(reconciliationdomain.RecordPaymentResult{}, tc.err).Once()

			w := doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/42/payments", gin.H{"amount": "10.00"})
			require.Equal(t, tc.status, w.Code, w.Body.String())

			payload := decodeError(t, w)
			assert.Equal(t, tc.errType, payload.Type)
			if tc.errField != "" {
				require.Len(t, payload.Errors, 1)
				assert.Equal(t, tc.errField, payload.Errors[0].Field)
			}
		})
	}
}

func TestRecordPayment_RequestValidation(t *testing.T) {
	engine, _ := newMockServer(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/abc/payments", gin.H{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id", decodeError(t, w).Errors[0].Field)

	w = doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/42/payments", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "amount", decodeError(t, w).Errors[0].Field)

	w = doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/42/payments", gin.H{"amount": "10", "payment_date": "14/05/2025"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_date", decodeError(t, w).Errors[0].Code)
}

func TestRecordPayment_PassesRequest(t *testing.T) {
	engine, reconciler := newMockServer(t)

	reconciler.On("RecordPayment", mock.Anything, mock.MatchedBy(func(req reconciliationdomain.RecordPaymentRequest) bool {
		return req.DocumentID == 42 &&
			req.Amount.Equal(decimal.RequireFromString("150.50")) &&
			req.PaymentDate.Equal(time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)) &&
			req.Notes != nil && *req.Notes == "cash"
	})).Return(reconciliationdomain.RecordPaymentResult{
		Document: ledgerdomain.LedgerDocument{ID: 42, Status: ledgerdomain.StatusPartial},
		Warnings: []reconciliationdomain.Warning{{Code: reconciliationdomain.WarningSplitFailed, Message: "boom"}},
	}, nil).Once()

	w := doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/42/payments", gin.H{
		"amount":       150.50,
		"payment_date": "2025-05-10",
		"notes":        "  cash ",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Document documentResponse               `json:"document"`
			Warnings []reconciliationdomain.Warning `json:"warnings"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Data.Document.ID)
	assert.Equal(t, "PARTIAL", resp.Data.Document.Status)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, "split_failed", resp.Data.Warnings[0].Code)
}

func TestDeleteAndCancel(t *testing.T) {
	engine, reconciler := newMockServer(t)

	reconciler.On("DeleteLedgerDocument", mock.Anything, snowflake.ID(7)).Return(nil).Once()
	reconciler.On("DeleteLedgerDocument", mock.Anything, snowflake.ID(8)).Return(reconciliationdomain.ErrBillHasInvoices).Once()
	reconciler.On("CancelLedgerDocument", mock.Anything, snowflake.ID(9)).
		Return(ledgerdomain.LedgerDocument{}, reconciliationdomain.ErrNotCancellable).Once()

	w := doJSON(t, engine, http.MethodDelete, "/v1/ledger-documents/7", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, engine, http.MethodDelete, "/v1/ledger-documents/8", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "bill_has_invoices", decodeError(t, w).Type)

	w = doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/9/cancel", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "document_not_cancellable", decodeError(t, w).Type)
}

func TestGetLedgerDocument(t *testing.T) {
	engine, reconciler := newMockServer(t)

	detail := reconciliationdomain.LedgerDocumentDetail{
		Document: ledgerdomain.LedgerDocument{ID: 42, Status: ledgerdomain.StatusPartial},
		Payments: []*ledgerdomain.Payment{{
			ID:             5,
			DocumentID:     42,
			TenderedAmount: decimal.NewFromInt(100),
			AppliedAmount:  decimal.NewFromInt(100),
			PaymentDate:    may2025,
		}},
	}
	reconciler.On("GetLedgerDocument", mock.Anything, snowflake.ID(42)).Return(detail, nil).Once()
	reconciler.On("GetLedgerDocument", mock.Anything, snowflake.ID(43)).
		Return(reconciliationdomain.LedgerDocumentDetail{}, reconciliationdomain.ErrNotFound).Once()

	w := doJSON(t, engine, http.MethodGet, "/v1/ledger-documents/42", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data documentDetailResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "42", resp.Data.Document.ID)
	require.Len(t, resp.Data.Payments, 1)
	assert.True(t, resp.Data.Payments[0].AppliedAmount.Equal(decimal.NewFromInt(100)))

	w = doJSON(t, engine, http.MethodGet, "/v1/ledger-documents/43", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/v1/ledger-documents/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	reconciler.AssertExpectations(t)
}

func TestCreateBill_RequestValidation(t *testing.T) {
	engine, _ := newMockServer(t)

	cases := []struct {
		name  string
		body  gin.H
		field string
	}{
		{name: "missing_tenant", body: gin.H{"bill_type": "water", "due_date": "2025-06-01"}, field: "tenant_id"},
		{name: "missing_due", body: gin.H{"tenant_id": "7", "bill_type": "water"}, field: "due_date"},
		{name: "no_charge", body: gin.H{"tenant_id": "7", "bill_type": "water", "due_date": "2025-06-01"}, field: "charge"},
		{
			name: "both_charges",
			body: gin.H{
				"tenant_id": "7", "bill_type": "water", "due_date": "2025-06-01",
				"metered": gin.H{"previous_reading": 1, "current_reading": 2, "charge_per_unit": 3},
				"rent":    gin.H{"rent": 100},
			},
			field: "charge",
		},
		{
			name: "metered_missing_reading",
			body: gin.H{
				"tenant_id": "7", "bill_type": "water", "due_date": "2025-06-01",
				"metered": gin.H{"current_reading": 2, "charge_per_unit": 3},
			},
			field: "previous_reading",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, engine, http.MethodPost, "/v1/bills", tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tc.field, decodeError(t, w).Errors[0].Field)
		})
	}
}

func TestCharges(t *testing.T) {
	engine, _ := newMockServer(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/charges/metered", gin.H{
		"previous_reading": "100",
		"current_reading":  "150",
		"charge_per_unit":  "20",
		"tax_rate":         "16",
		"tax_mode":         "exclusive",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var metered struct {
		Data chargeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metered))
	require.NotNil(t, metered.Data.Units)
	assert.True(t, metered.Data.Units.Equal(decimal.NewFromInt(50)))
	assert.True(t, metered.Data.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, metered.Data.TaxAmount.Equal(decimal.NewFromInt(160)))
	assert.True(t, metered.Data.GrandTotal.Equal(decimal.NewFromInt(1160)))

	w = doJSON(t, engine, http.MethodPost, "/v1/charges/metered", gin.H{
		"previous_reading": "150",
		"current_reading":  "100",
		"charge_per_unit":  "20",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_reading_range", decodeError(t, w).Errors[0].Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/charges/rent", gin.H{
		"rent":                 "1000",
		"service_charge_type":  "percentage",
		"service_charge_value": "10",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rent struct {
		Data chargeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rent))
	require.NotNil(t, rent.Data.ServiceCharge)
	assert.True(t, rent.Data.ServiceCharge.Equal(decimal.NewFromInt(100)))
	assert.True(t, rent.Data.GrandTotal.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, "NOT_APPLICABLE", rent.Data.TaxMode)
}

func TestHealthAndMetrics(t *testing.T) {
	engine, _ := newMockServer(t)

	w := doJSON(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// newLiveServer wires the real services over an in-memory database.
func newLiveServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db := dbtest.OpenDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.DefaultReconcileConfig()
	cfg.TxBackoff = time.Millisecond
	cfg.ReferenceBackoff = time.Millisecond
	holder := config.NewStaticReconcileConfigHolder(cfg)
	fake := clock.NewFakeClock(may2025)

	references := referenceservice.NewGenerator(referenceservice.Params{
		Repo:   referencerepository.Provide(),
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: holder,
	})
	calculator := taxservice.NewCalculator()
	reconciler := reconciliationservice.NewService(reconciliationservice.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Ledger:     ledgerrepository.Provide(),
		Engine:     paymentservice.NewEngine(),
		Calculator: calculator,
		References: references,
		Clock:      fake,
		Config:     holder,
	})

	engine := newTestEngine()
	NewServer(ServerParams{
		Engine:     engine,
		DB:         db,
		Reconciler: reconciler,
		Calculator: calculator,
		References: references,
		Clock:      fake,
	})
	return engine, db
}

func TestLedgerFlow(t *testing.T) {
	engine, _ := newLiveServer(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/bills", gin.H{
		"tenant_id": "7",
		"bill_type": "water",
		"due_date":  "2025-06-01",
		"rent":      gin.H{"rent": "1000"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data documentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	bill := created.Data
	assert.Equal(t, "BILL-202505-000001", bill.ReferenceNumber)
	assert.Equal(t, "UNPAID", bill.Status)
	assert.Equal(t, "WATER", bill.BillType)

	w = doJSON(t, engine, http.MethodPost, "/v1/bills/"+bill.ID+"/invoices", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var generated struct {
		Data documentResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &generated))
	invoice := generated.Data
	assert.Equal(t, "BILL-INV-202505-000001", invoice.ReferenceNumber)
	require.NotNil(t, invoice.ParentBillID)
	assert.Equal(t, bill.ID, *invoice.ParentBillID)

	w = doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/"+invoice.ID+"/payments", gin.H{"amount": "400"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var paid struct {
		Data struct {
			Document      documentResponse  `json:"document"`
			ParentBill    *documentResponse `json:"parent_bill"`
			SplitDocument *documentResponse `json:"split_document"`
			Payment       *paymentResponse  `json:"payment"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &paid))
	assert.Equal(t, "PARTIAL", paid.Data.Document.Status)
	require.NotNil(t, paid.Data.ParentBill)
	assert.True(t, paid.Data.ParentBill.AmountPaid.Equal(decimal.NewFromInt(400)))
	require.NotNil(t, paid.Data.SplitDocument)
	assert.True(t, paid.Data.SplitDocument.GrandTotal.Equal(decimal.NewFromInt(600)))
	require.NotNil(t, paid.Data.Payment)
	assert.True(t, paid.Data.Payment.AppliedAmount.Equal(decimal.NewFromInt(400)))

	w = doJSON(t, engine, http.MethodGet, "/v1/ledger-documents/"+invoice.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var fetched struct {
		Data documentDetailResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "PARTIAL", fetched.Data.Document.Status)
	require.Len(t, fetched.Data.Payments, 1)
	assert.True(t, fetched.Data.Payments[0].TenderedAmount.Equal(decimal.NewFromInt(400)))

	w = doJSON(t, engine, http.MethodDelete, "/v1/ledger-documents/"+bill.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = doJSON(t, engine, http.MethodPost, "/v1/ledger-documents/"+snowflake.ID(999).String()+"/payments", gin.H{"amount": "1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueReferenceNumber(t *testing.T) {
	engine, _ := newLiveServer(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/reference-numbers", gin.H{"kind": "offer_letter"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			Kind            string `json:"kind"`
			ReferenceNumber string `json:"reference_number"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "OFFER-2025-000001", resp.Data.ReferenceNumber)

	w = doJSON(t, engine, http.MethodPost, "/v1/reference-numbers", gin.H{"kind": "offer_letter", "at": "2025-02-01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "OFFER-2025-000002", resp.Data.ReferenceNumber)

	w = doJSON(t, engine, http.MethodPost, "/v1/reference-numbers", gin.H{"kind": "receipt"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "kind", decodeError(t, w).Errors[0].Field)
}

func TestActorContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ActorContext())
	r.GET("/who", func(c *gin.Context) {
		actorType, actorID := auditdomain.ActorFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"type": actorType, "id": actorID})
	})

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(HeaderActorID, "clerk-9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "user", got["type"])
	assert.Equal(t, "clerk-9", got["id"])
}
