package export

import (
	"context"
	"fmt"

	"github.com/mdsync/mdsync/pkg/manga"
	"github.com/xuri/excelize/v2"
)

// SheetName of the single worksheet in the Excel export.
const SheetName = "Follows"

type Excel struct {
	Path string
}

func (Excel) Name() string { return "Excel" }

func (e Excel) Export(ctx context.Context, mangas []manga.Manga) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return err
	}
	if err := writeRow(f, 1, Headers); err != nil {
		return err
	}
	for i, m := range mangas {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeRow(f, i+2, Fields(m)); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	if err := f.SaveAs(e.Path); err != nil {
		return fmt.Errorf("could not save Excel file: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &values)
}
