package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reconciliationdomain "github.com/smallbiznis/rentledger/internal/reconciliation/domain"
	taxdomain "github.com/smallbiznis/rentledger/internal/tax/domain"
)

type createBillRequest struct {
	TenantID   string                `json:"tenant_id"`
	PropertyID string                `json:"property_id"`
	BillType   string                `json:"bill_type"`
	IssueDate  string                `json:"issue_date"`
	DueDate    string                `json:"due_date"`
	Notes      *string               `json:"notes"`
	Metered    *meteredChargeRequest `json:"metered"`
	Rent       *rentChargeRequest    `json:"rent"`
}

func (s *Server) CreateBill(c *gin.Context) {
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reconciler.CreateBill(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toDocumentResponse(doc)})
}

func (r createBillRequest) toDomain() (reconciliationdomain.CreateBillRequest, error) {
	tenantID, err := parseOptionalID("tenant_id", r.TenantID)
	if err != nil {
		return reconciliationdomain.CreateBillRequest{}, err
	}
	if tenantID == nil {
		return reconciliationdomain.CreateBillRequest{}, newValidationError("tenant_id", "required", "tenant_id is required")
	}
	propertyID, err := parseOptionalID("property_id", r.PropertyID)
	if err != nil {
		return reconciliationdomain.CreateBillRequest{}, err
	}
	billType := strings.ToUpper(strings.TrimSpace(r.BillType))
	if billType == "" {
		return reconciliationdomain.CreateBillRequest{}, newValidationError("bill_type", "required", "bill_type is required")
	}
	issueDate, err := parseDate("issue_date", r.IssueDate)
	if err != nil {
		return reconciliationdomain.CreateBillRequest{}, err
	}
	dueDate, err := parseDate("due_date", r.DueDate)
	if err != nil {
		return reconciliationdomain.CreateBillRequest{}, err
	}
	if dueDate.IsZero() {
		return reconciliationdomain.CreateBillRequest{}, newValidationError("due_date", "required", "due_date is required")
	}
	if (r.Metered == nil) == (r.Rent == nil) {
		return reconciliationdomain.CreateBillRequest{}, newValidationError("charge", "invalid_charge", "exactly one of metered or rent is required")
	}

	out := reconciliationdomain.CreateBillRequest{
		TenantID:   *tenantID,
		PropertyID: propertyID,
		BillType:   billType,
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Notes:      trimmedPtr(r.Notes),
	}
	if r.Metered != nil {
		var metered taxdomain.MeteredChargeInput
		if metered, err = r.Metered.toInput(); err != nil {
			return reconciliationdomain.CreateBillRequest{}, err
		}
		out.Metered = &metered
	} else {
		var rent taxdomain.RentChargeInput
		if rent, err = r.Rent.toInput(); err != nil {
			return reconciliationdomain.CreateBillRequest{}, err
		}
		out.Rent = &rent
	}
	return out, nil
}

type generateInvoiceRequest struct {
	DueDate string  `json:"due_date"`
	Notes   *string `json:"notes"`
}

// GenerateLedgerDocument issues an invoice for the unpaid balance of a bill.
// The body is optional.
func (s *Server) GenerateLedgerDocument(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req generateInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	dueDate, err := parseDate("due_date", req.DueDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.reconciler.GenerateLedgerDocument(c.Request.Context(), reconciliationdomain.GenerateRequest{
		ParentBillID: id,
		DueDate:      dueDate,
		Notes:        trimmedPtr(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": toDocumentResponse(doc)})
}
