package sheet

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/unclebandit/voiceops-backend/internal/model"
)

func workbook(t *testing.T, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadTargets(t *testing.T) {
	buf := workbook(t, [][]any{
		{"First Name", "Last Name", "Phone Number", "E-mail", "Make", "Model", "Year", "License Plate"},
		{"Ada", "Lovelace", "(555) 123-0000", "ada@example.com", "Toyota", "Corolla", 2020, "ABC123"},
		{"", "", "", "nobody@example.com"},
		{"Grace", "", "+15551230001", "", "", "", "n/a"},
	})

	got, err := ReadTargets(buf)
	require.NoError(t, err)

	want := []model.TargetInput{
		{
			Phone: "(555) 123-0000", FullName: "Ada Lovelace", Email: "ada@example.com",
			VehicleMake: "Toyota", VehicleModel: "Corolla", VehicleYear: 2020, PlateNumber: "ABC123",
		},
		{Phone: "+15551230001", FullName: "Grace"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadTargets mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTargetsPrefersFullName(t *testing.T) {
	buf := workbook(t, [][]any{
		{"customer_name", "first", "mobile"},
		{"Ada Lovelace", "Augusta", "+15551230000"},
	})

	got, err := ReadTargets(buf)
	require.NoError(t, err)
	require.Len(t, got, 1)
	if diff := cmp.Diff("Ada Lovelace", got[0].FullName); diff != "" {
		t.Error(diff)
	}
}

func TestReadTargetsErrors(t *testing.T) {
	_, err := ReadTargets(workbook(t, [][]any{{"name", "email"}, {"Ada", "ada@example.com"}}))
	require.ErrorIs(t, err, ErrNoPhoneColumn)

	_, err = ReadTargets(bytes.NewBufferString("not a workbook"))
	require.Error(t, err)
}
