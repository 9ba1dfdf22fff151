// Package importer reads invoice line items that were already extracted
// from supplier invoices into CSV, XLSX or JSON files.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/dedup"
)

type field int

const (
	fieldUnknown field = iota
	fieldManufacturerSKU
	fieldSupplierSKU
	fieldManufacturer
	fieldName
	fieldCategory
	fieldDescription
	fieldPrice
)

var headerAliases = map[string]field{
	"manufacturer_sku":    fieldManufacturerSKU,
	"mfg_sku":             fieldManufacturerSKU,
	"mfr_sku":             fieldManufacturerSKU,
	"mpn":                 fieldManufacturerSKU,
	"manufacturer_part":   fieldManufacturerSKU,
	"supplier_sku":        fieldSupplierSKU,
	"sku":                 fieldSupplierSKU,
	"item":                fieldSupplierSKU,
	"item_number":         fieldSupplierSKU,
	"item_no":             fieldSupplierSKU,
	"manufacturer":        fieldManufacturer,
	"brand":               fieldManufacturer,
	"mfr":                 fieldManufacturer,
	"name":                fieldName,
	"product_name":        fieldName,
	"item_name":           fieldName,
	"title":               fieldName,
	"category":            fieldCategory,
	"product_category":    fieldCategory,
	"description":         fieldDescription,
	"item_description":    fieldDescription,
	"product_description": fieldDescription,
	"price":               fieldPrice,
	"unit_price":          fieldPrice,
	"unit_cost":           fieldPrice,
	"cost":                fieldPrice,
}

// Issue is a line item that was skipped. Row is 1-based and counts the
// header for tabular files; for JSON it is the element index plus one.
type Issue struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result holds the parsed line items in file order.
type Result struct {
	Items   []dedup.IncomingProduct `json:"items"`
	Skipped []Issue                 `json:"skipped,omitempty"`
}

// Options tunes file reading.
type Options struct {
	CSV  CSVOptions
	XLSX XLSXOptions
}

// ReadFile parses path by extension: .csv, .tsv, .xlsx or .json.
func ReadFile(ctx context.Context, path string, opts Options) (*Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		rows, err := ReadXLSX(path, opts.XLSX)
		if err != nil {
			return nil, err
		}
		return FromRows(rows)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	switch ext {
	case ".csv":
		return ReadCSV(ctx, f, opts.CSV)
	case ".tsv":
		csvOpts := opts.CSV
		csvOpts.Delimiter = '\t'
		return ReadCSV(ctx, f, csvOpts)
	case ".json":
		return ReadJSON(ctx, f)
	}
	return nil, eris.Errorf("importer: unsupported file type %q (supported: .csv, .tsv, .xlsx, .json)", ext)
}

// ReadCSV parses CSV line items with a header row.
func ReadCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*Result, error) {
	rowCh, errCh := StreamCSV(ctx, r, opts)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return FromRows(rows)
}

// ReadJSON parses a JSON array of line-item objects keyed by header names.
func ReadJSON(ctx context.Context, r io.Reader) (*Result, error) {
	itemCh, errCh := DecodeJSONArray[map[string]any](ctx, r)
	res := &Result{}
	idx := 0
	for obj := range itemCh {
		idx++
		values := make(map[field]string, len(obj))
		for k, v := range obj {
			if f := lookupHeader(k); f != fieldUnknown {
				values[f] = jsonString(v)
			}
		}
		res.add(idx, values)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return res, nil
}

// FromRows maps tabular rows to line items. The first non-empty row is the
// header and must name a manufacturer SKU column.
func FromRows(rows [][]string) (*Result, error) {
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return &Result{}, nil
	}

	columns := make([]field, len(rows[start]))
	hasSKU := false
	for i, h := range rows[start] {
		columns[i] = lookupHeader(h)
		hasSKU = hasSKU || columns[i] == fieldManufacturerSKU
	}
	if !hasSKU {
		return nil, eris.Errorf("importer: header %v has no manufacturer SKU column", rows[start])
	}

	res := &Result{}
	for i, row := range rows[start+1:] {
		if blank(row) {
			continue
		}
		values := make(map[field]string, len(columns))
		for j, cell := range row {
			if j < len(columns) && columns[j] != fieldUnknown && values[columns[j]] == "" {
				values[columns[j]] = strings.TrimSpace(cell)
			}
		}
		res.add(start+i+2, values)
	}
	return res, nil
}

func (r *Result) add(row int, values map[field]string) {
	sku := values[fieldManufacturerSKU]
	if sku == "" {
		r.Skipped = append(r.Skipped, Issue{Row: row, Reason: "missing manufacturer SKU"})
		return
	}
	price, err := parsePrice(values[fieldPrice])
	if err != nil {
		r.Skipped = append(r.Skipped, Issue{Row: row, Reason: err.Error()})
		return
	}
	r.Items = append(r.Items, dedup.IncomingProduct{
		SupplierSKU:     values[fieldSupplierSKU],
		ManufacturerSKU: sku,
		Manufacturer:    values[fieldManufacturer],
		Name:            values[fieldName],
		Category:        values[fieldCategory],
		Description:     values[fieldDescription],
		Price:           price,
	})
}

func lookupHeader(h string) field {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_", ".", "", "#", "").Replace(h)
	return headerAliases[strings.Trim(h, "_")]
}

// parsePrice accepts "$1,234.50" style values. An empty value is unknown.
func parsePrice(s string) (*float64, error) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	if v < 0 {
		return nil, fmt.Errorf("negative price %q", s)
	}
	return &v, nil
}

func jsonString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
