package pdf

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
)

const dateLayout = "2006-01-02 15:04:05 MST"

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, invoice tenantdomain.Invoice) (io.Reader, error) {
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

	m.AddRow(10,
		text.NewCol(12, "Invoice", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Invoice: "+invoice.ID, props.Text{Top: 0}),
			text.New("Tenant: "+invoice.UserID, props.Text{Top: 4}),
			text.New("Provider: "+invoice.Provider, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New("From: "+formatTime(invoice.StartTime), props.Text{Top: 0, Align: align.Right}),
			text.New("To: "+formatTime(invoice.EndTime), props.Text{Top: 4, Align: align.Right}),
			text.New("State: "+string(invoice.State), props.Text{Top: 8, Align: align.Right, Style: fontstyle.Bold}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Resource", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Order state", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Value", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(2, line.NewCol(12))

	for _, item := range invoice.Items {
		resource := item.OrderID
		if item.Item != nil {
			resource = item.Item.String()
		}
		m.AddRow(8,
			text.NewCol(6, resource, props.Text{Size: 9}),
			text.NewCol(3, string(item.State), props.Text{Size: 9}),
			text.NewCol(3, item.Value.StringFixed(2), props.Text{Size: 9, Align: align.Right}),
		)
	}
	if len(invoice.Items) == 0 {
		m.AddRow(8, text.NewCol(12, "No billable usage in this period", props.Text{Size: 9, Style: fontstyle.Italic}))
	}

	m.AddRow(2, line.NewCol(12))
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Style: fontstyle.Bold, Size: 10}),
		text.NewCol(3, invoice.Total.StringFixed(2), props.Text{Style: fontstyle.Bold, Size: 10, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to render invoice").Mark(ierr.ErrInternal)
	}
	return bytes.NewReader(doc.GetBytes()), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}
