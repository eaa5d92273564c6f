// Package invoicedoc renders billing invoices as PDF documents.
package invoicedoc

import (
	"context"
	"fmt"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/tenantgate/internal/billing/domain"
)

const dateLayout = "02 Jan 2006"

type InvoiceData struct {
	IssuerName    string
	ProjectName   string
	InvoiceNumber string
	Status        string
	IssueDate     string
	DueDate       string
	ServicePeriod string
	PaidAt        string

	Items []InvoiceItem

	Total    string
	Currency string
}

type InvoiceItem struct {
	Description string
	Qty         int64
	UnitPrice   string
	Amount      string
}

// Renderer turns invoices into PDF bytes.
type Renderer struct {
	issuer string
}

func New() *Renderer {
	return &Renderer{issuer: "tenantgate"}
}

// FromInvoice lays out the user seats and application add-ons of inv as
// separate lines.
func FromInvoice(inv *billingdomain.Invoice, projectName string) InvoiceData {
	data := InvoiceData{
		ProjectName:   projectName,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        string(inv.Status),
		IssueDate:     inv.CreatedAt.Format(dateLayout),
		DueDate:       inv.DueDate.Format(dateLayout),
		ServicePeriod: inv.PeriodStart.Format(dateLayout) + " - " + inv.PeriodEnd.Format(dateLayout),
		Total:         inv.Amount.StringFixed(2),
		Currency:      inv.Currency,
	}
	if inv.PaidAt != nil {
		data.PaidAt = inv.PaidAt.Format(dateLayout)
	}

	data.Items = append(data.Items, InvoiceItem{
		Description: "Active users",
		Qty:         inv.UserCount,
		UnitPrice:   unitPrice(inv.UserAmount, inv.UserCount),
		Amount:      inv.UserAmount.StringFixed(2),
	})
	if inv.ApplicationCount > 0 || !inv.ApplicationAmount.IsZero() {
		data.Items = append(data.Items, InvoiceItem{
			Description: "Applications",
			Qty:         inv.ApplicationCount,
			UnitPrice:   "-",
			Amount:      inv.ApplicationAmount.StringFixed(2),
		})
	}
	return data
}

func unitPrice(amount decimal.Decimal, qty int64) string {
	if qty == 0 {
		return "-"
	}
	return amount.Div(decimal.NewFromInt(qty)).StringFixed(2)
}

func (r *Renderer) Render(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if invoice.IssuerName == "" {
		invoice.IssuerName = r.issuer
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		WithCreationDate(time.Now()).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(8, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, invoice.Status, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(22,
		col.New(6).Add(
			text.New("Invoice number: "+invoice.InvoiceNumber, props.Text{Top: 0}),
			text.New("Date of issue: "+invoice.IssueDate, props.Text{Top: 5}),
			text.New("Date due: "+invoice.DueDate, props.Text{Top: 10}),
			text.New("Service period: "+invoice.ServicePeriod, props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New(invoice.IssuerName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("Bill to: "+invoice.ProjectName, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, fmt.Sprintf("%s %s due %s", invoice.Currency, invoice.Total, invoice.DueDate), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range invoice.Items {
		m.AddRow(10,
			text.NewCol(6, item.Description, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Qty), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, item.Amount, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, invoice.Total, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	if invoice.PaidAt != "" {
		m.AddRow(10,
			col.New(8),
			text.NewCol(4, "Paid on "+invoice.PaidAt, props.Text{Size: 9, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
