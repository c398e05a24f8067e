package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"jma-forecast/internal/models"
)

const sheetName = "Forecast"

var header = []interface{}{"Area", "Date", "Time", "Weather", "Precipitation (%)"}

// WriteWorkbook writes the cached rows of an office as an .xlsx workbook with
// one sheet: a header row followed by one row per forecast entry, in the
// order given.
func WriteWorkbook(w io.Writer, officeCode string, rows []models.ForecastRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.AreaName, row.ForecastDate, row.TimeSlot, row.Weather, row.Pop}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("JMA forecast %s", officeCode),
		Creator: "jma-forecast",
	}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
