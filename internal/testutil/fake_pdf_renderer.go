package testutil

import (
	"context"

	"github.com/meteroid-oss/meteroid-sub006/internal/pdfrender"
)

// FakePDFRenderer returns a fixed byte slice, standing in for an external
// rendering service in tests.
type FakePDFRenderer struct {
	Bytes []byte
	Err   error
}

func NewFakePDFRenderer() *FakePDFRenderer {
	return &FakePDFRenderer{Bytes: []byte("%PDF-1.4 fake")}
}

func (f *FakePDFRenderer) Render(ctx context.Context, model pdfrender.InvoiceModel) ([]byte, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Bytes, nil
}
