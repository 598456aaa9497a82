// Package export writes a campaign's donor ledger to a spreadsheet.
package export

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/units"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	DonationsSheet = "Donations"
	SummarySheet   = "Campaign"
)

var donationsHeader = []interface{}{"#", "Donor", "Amount (ETH)", "Amount (wei)"}

// Donations writes the ledger of c to path as .xlsx. Amounts are written as
// text so no precision is lost to spreadsheet floats.
func Donations(path string, c campaign.Campaign, donations []campaign.Donation, now time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(DonationsSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(DonationsSheet, "A1", &donationsHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(DonationsSheet, 1, 1, bold); err != nil {
		return err
	}

	total := decimal.Zero
	for i, d := range donations {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		wei := "0"
		if d.AmountBase != nil {
			wei = d.AmountBase.String()
			total = total.Add(decimal.NewFromBigInt(d.AmountBase, -units.EtherDecimals))
		}
		row := []interface{}{i + 1, d.Donor, d.Amount, wei}
		if err := f.SetSheetRow(DonationsSheet, cell, &row); err != nil {
			return err
		}
	}
	if err := adjustColumnsWidth(f, DonationsSheet); err != nil {
		return err
	}

	if err := writeSummary(f, c, len(donations), total, now, bold); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

func writeSummary(f *excelize.File, c campaign.Campaign, count int, total decimal.Decimal, now time.Time, bold int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Campaign", c.ID},
		{"Title", c.Title},
		{"Description", c.Description},
		{"Owner", c.Owner},
		{"Target (ETH)", c.Target},
		{"Collected (ETH)", c.AmountCollected},
		{"Progress (%)", fmt.Sprintf("%.2f", c.Progress())},
		{"Deadline", time.Unix(c.Deadline, 0).UTC().Format(time.RFC3339)},
		{"Donations", count},
		{"Donated total (ETH)", total.String()},
		{"Exported", now.UTC().Format(time.RFC3339)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(SummarySheet, "A", bold); err != nil {
		return err
	}
	return adjustColumnsWidth(f, SummarySheet)
}

// adjustColumnsWidth sizes every column to its widest cell.
func adjustColumnsWidth(f *excelize.File, sheet string) error {
	cols, err := f.GetCols(sheet)
	if err != nil {
		return err
	}
	for idx, col := range cols {
		widest := 0
		for _, cell := range col {
			if w := utf8.RuneCountInString(cell); w > widest {
				widest = w
			}
		}
		name, err := excelize.ColumnNumberToName(idx + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(widest+2)); err != nil {
			return err
		}
	}
	return nil
}
