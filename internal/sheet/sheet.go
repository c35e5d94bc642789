// Package sheet reads target uploads from .xlsx workbooks.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

// ErrNoPhoneColumn is returned when no header matches a phone alias.
var ErrNoPhoneColumn = errors.New("sheet has no phone column")

// header aliases, compared lower-cased with spaces, dashes and
// underscores removed
var aliases = map[string][]string{
	"phone":         {"phone", "phonenumber", "mobile", "cell", "telephone"},
	"full_name":     {"fullname", "name", "customername", "customer"},
	"first_name":    {"firstname", "first"},
	"last_name":     {"lastname", "last", "surname"},
	"email":         {"email", "emailaddress"},
	"vehicle_make":  {"vehiclemake", "make", "brand"},
	"vehicle_model": {"vehiclemodel", "model", "vehicle"},
	"vehicle_year":  {"vehicleyear", "year"},
	"plate_number":  {"platenumber", "plate", "licenseplate", "registration"},
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// columns maps field names to column indexes. The first matching header wins.
func columns(header []string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		key := normalizeHeader(h)
		for field, names := range aliases {
			if _, taken := cols[field]; taken {
				continue
			}
			for _, n := range names {
				if key == n {
					cols[field] = i
					break
				}
			}
		}
	}
	return cols
}

// ReadTargets parses the first worksheet of r. The first row is the header.
// Rows without a phone are skipped.
func ReadTargets(r io.Reader) ([]model.TargetInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoPhoneColumn
	}

	cols := columns(rows[0])
	if _, ok := cols["phone"]; !ok {
		return nil, ErrNoPhoneColumn
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	targets := make([]model.TargetInput, 0, len(rows)-1)
	for _, row := range rows[1:] {
		phone := cell(row, "phone")
		if phone == "" {
			continue
		}
		in := model.TargetInput{
			Phone:        phone,
			FullName:     cell(row, "full_name"),
			Email:        cell(row, "email"),
			VehicleMake:  cell(row, "vehicle_make"),
			VehicleModel: cell(row, "vehicle_model"),
			PlateNumber:  cell(row, "plate_number"),
		}
		if in.FullName == "" {
			in.FullName = strings.TrimSpace(cell(row, "first_name") + " " + cell(row, "last_name"))
		}
		if y, err := strconv.Atoi(cell(row, "vehicle_year")); err == nil {
			in.VehicleYear = y
		}
		targets = append(targets, in)
	}
	return targets, nil
}
