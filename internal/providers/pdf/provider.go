package pdf

import (
	"context"
	"io"

	"github.com/gosimple/slug"
	tenantdomain "github.com/smallbiznis/fedbill/internal/tenant/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("pdf",
	fx.Provide(New),
)

// Provider renders billing documents.
type Provider interface {
	GenerateInvoice(ctx context.Context, invoice tenantdomain.Invoice) (io.Reader, error)
}

// FileName returns the download name of an invoice document.
func FileName(invoice tenantdomain.Invoice) string {
	return slug.Make(invoice.UserID+" "+invoice.Provider+" "+invoice.ID) + ".pdf"
}
