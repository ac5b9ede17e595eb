package sheets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/storeit/dashboard/internal/models"
)

// Column headers of the host tab.
const (
	ColUsername         = "Username"
	ColLatitude         = "Latitude"
	ColLongitude        = "Longitude"
	ColAvailableStart   = "Available Start Date"
	ColAvailableEnd     = "Available End Date"
	ColPostalCode       = "Postal Code"
	ColTransactionCount = "Transaction Count"
	ColRevenueProjected = "Revenue Projected"
)

// Column headers of the customer tab.
const (
	ColCheckInDate = "Check-In Date"
	ColEndDate     = "End Date"
	ColStage       = "Stage"
	ColHasPaid     = "Has Paid"
	ColMatchedHost = "Matched Host"
	ColStorageCost = "Storage Cost"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("required column missing")

// dateLayouts are tried in order. Month-first slash dates match spreadsheet CSV exports.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"2006/01/02",
	"2 Jan 2006",
	"Jan 2, 2006",
}

// header maps normalized column names to their index.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		key := normalizeColumn(name)
		if _, dup := h[key]; !dup {
			h[key] = i
		}
	}
	return h
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// cell returns the trimmed value of column name, or "" when the column or cell is absent.
func (h header) cell(row []string, name string) string {
	i, ok := h[normalizeColumn(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (h header) require(names ...string) error {
	for _, name := range names {
		if _, ok := h[normalizeColumn(name)]; !ok {
			return fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	return nil
}

func readAll(r io.Reader) (header, [][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("csv: read: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("csv: empty table")
	}
	return newHeader(rows[0]), rows[1:], nil
}

// ParseHosts reads a host table CSV. Unparseable cells become nil rather than errors.
func ParseHosts(r io.Reader) ([]models.HostRecord, error) {
	h, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if err := h.require(ColUsername); err != nil {
		return nil, err
	}

	hosts := make([]models.HostRecord, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		hosts = append(hosts, models.HostRecord{
			Username:         h.cell(row, ColUsername),
			Latitude:         parseFloat(h.cell(row, ColLatitude)),
			Longitude:        parseFloat(h.cell(row, ColLongitude)),
			AvailableStart:   ParseDate(h.cell(row, ColAvailableStart)),
			AvailableEnd:     ParseDate(h.cell(row, ColAvailableEnd)),
			PostalCode:       parsePostalCode(h.cell(row, ColPostalCode)),
			TransactionCount: parseInt(h.cell(row, ColTransactionCount)),
			RevenueProjected: parseFloat(h.cell(row, ColRevenueProjected)),
		})
	}
	return hosts, nil
}

// ParseCustomers reads a customer table CSV. Unparseable cells become nil rather than errors.
func ParseCustomers(r io.Reader) ([]models.CustomerRecord, error) {
	h, rows, err := readAll(r)
	if err != nil {
		return nil, err
	}
	if err := h.require(ColUsername); err != nil {
		return nil, err
	}

	customers := make([]models.CustomerRecord, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		customers = append(customers, models.CustomerRecord{
			Username:    h.cell(row, ColUsername),
			Latitude:    parseFloat(h.cell(row, ColLatitude)),
			Longitude:   parseFloat(h.cell(row, ColLongitude)),
			CheckInDate: ParseDate(h.cell(row, ColCheckInDate)),
			EndDate:     ParseDate(h.cell(row, ColEndDate)),
			Stage:       parseStage(h.cell(row, ColStage)),
			HasPaid:     parseFlag(h.cell(row, ColHasPaid)),
			MatchedHost: parseOptionalString(h.cell(row, ColMatchedHost)),
			StorageCost: parseFloat(h.cell(row, ColStorageCost)),
		})
	}
	return customers, nil
}

// ParseDate parses a date cell into a calendar date at midnight UTC.
// Empty or malformed text yields nil.
func ParseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := models.DateOf(t)
			return &d
		}
	}
	return nil
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseInt(s string) *int {
	f := parseFloat(s)
	if f == nil || *f != math.Trunc(*f) {
		return nil
	}
	n := int(*f)
	return &n
}

// parseStage accepts "2" and "2.0"; anything else, including values outside
// the int32 range of the stage column, is StageUnknown.
func parseStage(s string) models.Stage {
	n := parseInt(s)
	if n == nil || *n < math.MinInt32 || *n > math.MaxInt32 {
		return models.StageUnknown
	}
	return models.Stage(*n)
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "1.0", "true", "yes", "y":
		return true
	default:
		return false
	}
}

func parseOptionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// parsePostalCode undoes numeric formatting such as "018956.0" from spreadsheet exports.
func parsePostalCode(s string) string {
	return strings.TrimSuffix(s, ".0")
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
