// Package bomcsv turns a bill-of-materials CSV export into part queries.
package bomcsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/ahrav/go-bomcheck/internal/domain"
)

// ErrMissingColumn indicates the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// column aliases, compared case-insensitively.
var (
	mpnHeaders          = []string{"manufacturer part number", "mpn", "part number"}
	manufacturerHeaders = []string{"manufacturer", "mfr"}
	quantityHeaders     = []string{"quantity", "qty"}
	priceHeaders        = []string{"unit price", "price"}
	supplierHeaders     = []string{"supplier", "distributor"}
	descriptionHeaders  = []string{"description"}
)

type columns struct {
	mpn, manufacturer, quantity, price, supplier, description int
}

// Read parses a BOM with a header row. Rows without an MPN are skipped.
// MPNs listed in priority are flagged and moved to the front, otherwise the
// file order is kept. A missing or blank quantity counts as one.
func Read(r io.Reader, priority []string) ([]domain.PartQuery, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	fold := cases.Fold()
	wanted := make(map[string]struct{}, len(priority))
	for _, p := range priority {
		wanted[fold.String(strings.TrimSpace(p))] = struct{}{}
	}

	var queries []domain.PartQuery
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		mpn := field(record, cols.mpn)
		if mpn == "" {
			continue
		}

		q := domain.PartQuery{
			ManufacturerPartNumber: mpn,
			Manufacturer:           field(record, cols.manufacturer),
			CurrentSupplier:        field(record, cols.supplier),
			Description:            field(record, cols.description),
			RequestedQuantity:      1,
		}
		if raw := field(record, cols.quantity); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: quantity %q: %w", line, raw, err)
			}
			q.RequestedQuantity = n
		}
		if raw := strings.TrimPrefix(field(record, cols.price), "$"); raw != "" {
			price, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
			if err != nil {
				return nil, fmt.Errorf("line %d: unit price %q: %w", line, raw, err)
			}
			q.CurrentUnitPrice = price
		}
		if _, ok := wanted[fold.String(mpn)]; ok {
			q.Priority = true
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		queries = append(queries, q)
	}

	slices.SortStableFunc(queries, func(a, b domain.PartQuery) int {
		switch {
		case a.Priority == b.Priority:
			return 0
		case a.Priority:
			return -1
		default:
			return 1
		}
	})
	return queries, nil
}

func mapColumns(header []string) (columns, error) {
	fold := cases.Fold()
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := fold.String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	find := func(aliases []string) int {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				return i
			}
		}
		return -1
	}

	cols := columns{
		mpn:          find(mpnHeaders),
		manufacturer: find(manufacturerHeaders),
		quantity:     find(quantityHeaders),
		price:        find(priceHeaders),
		supplier:     find(supplierHeaders),
		description:  find(descriptionHeaders),
	}
	if cols.mpn < 0 {
		return columns{}, fmt.Errorf("%w: %q", ErrMissingColumn, mpnHeaders[0])
	}
	return cols, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
