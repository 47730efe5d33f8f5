package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	ledgerdomain "github.com/smallbiznis/rentledger/internal/ledger/domain"
)

const dateLayout = "02 Jan 2006"

type statementRenderer struct{}

func NewRenderer() Renderer {
	return &statementRenderer{}
}

// StatementTitle names the document the way the tenant sees it. A settled
// document prints as a receipt.
func StatementTitle(doc ledgerdomain.LedgerDocument) string {
	switch {
	case doc.Status == ledgerdomain.StatusPaid:
		return "Receipt"
	case doc.Kind == ledgerdomain.DocumentKindBill:
		return "Bill"
	default:
		return "Invoice"
	}
}

func (r *statementRenderer) Render(ctx context.Context, doc ledgerdomain.LedgerDocument) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, StatementTitle(doc), props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	meta := col.New(6).Add(
		text.New("Reference: "+doc.ReferenceNumber, props.Text{Top: 0}),
		text.New("Date of issue: "+doc.IssueDate.Format(dateLayout), props.Text{Top: 4}),
		text.New("Date due: "+doc.DueDate.Format(dateLayout), props.Text{Top: 8}),
	)
	if doc.PaidAt != nil {
		meta.Add(text.New("Date paid: "+doc.PaidAt.Format(dateLayout), props.Text{Top: 12}))
	}
	m.AddRow(20,
		meta,
		col.New(6).Add(
			text.New("Tenant: "+doc.TenantID.String(), props.Text{Align: align.Right}),
			text.New("Charge: "+doc.BillType, props.Text{Top: 4, Align: align.Right}),
		),
	)

	if len(doc.MeterReading) > 0 {
		m.AddRow(8, text.NewCol(12, "Meter reading", props.Text{Style: fontstyle.Bold, Size: 9}))
		for _, key := range []string{"previous_reading", "current_reading", "units", "charge_per_unit"} {
			value, ok := doc.MeterReading[key]
			if !ok {
				continue
			}
			m.AddRow(6,
				text.NewCol(6, key, props.Text{Size: 9}),
				text.NewCol(6, fmt.Sprint(value), props.Text{Size: 9, Align: align.Right}),
			)
		}
	}

	taxLabel := "Tax"
	if doc.TaxRate != nil {
		taxLabel = fmt.Sprintf("Tax (%s%%, %s)", doc.TaxRate.StringFixed(2), doc.TaxMode)
	}
	rows := []struct {
		label string
		value string
		bold  bool
	}{
		{label: "Subtotal", value: doc.Subtotal.StringFixed(2)},
		{label: taxLabel, value: doc.TaxAmount.StringFixed(2)},
		{label: "Total", value: doc.GrandTotal.StringFixed(2), bold: true},
		{label: "Amount paid", value: doc.AmountPaid.StringFixed(2)},
		{label: "Balance due", value: doc.Balance.StringFixed(2), bold: true},
	}
	for _, row := range rows {
		style := fontstyle.Normal
		if row.bold {
			style = fontstyle.Bold
		}
		m.AddRow(8,
			col.New(6),
			text.NewCol(3, row.label, props.Text{Size: 9, Style: style}),
			text.NewCol(3, row.value, props.Text{Size: 9, Style: style, Align: align.Right}),
		)
	}

	if doc.Notes != nil && *doc.Notes != "" {
		m.AddRow(15, text.NewCol(12, *doc.Notes, props.Text{Size: 9, Top: 5}))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate statement %s: %w", doc.ReferenceNumber, err)
	}
	return out.GetBytes(), nil
}
