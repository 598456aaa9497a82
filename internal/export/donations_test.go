package export_test

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/campaign"
	"github.com/Mohsinsiddi/w3fund/internal/export"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func wei(s string) *big.Int {
	v, _ := new(big.Int).SetString(s, 10)
	return v
}

func TestDonationsWritesLedgerAndSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.xlsx")
	c := campaign.Campaign{
		ID:              4,
		Owner:           "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Title:           "Library roof",
		Description:     "Patch the leaks",
		Target:          "10.0",
		AmountCollected: "4.5",
		Deadline:        1_900_000_000,
		TargetBase:      wei("10000000000000000000"),
		CollectedBase:   wei("4500000000000000000"),
	}
	donations := []campaign.Donation{
		{Donor: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Amount: "1.5", AmountBase: wei("1500000000000000000")},
		{Donor: "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", Amount: "3.0", AmountBase: wei("3000000000000000000")},
	}

	require.NoError(t, export.Donations(path, c, donations, time.Unix(1_800_000_000, 0)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.DonationsSheet, export.SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(export.DonationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"#", "Donor", "Amount (ETH)", "Amount (wei)"}, rows[0])
	assert.Equal(t, []string{"1", donations[0].Donor, "1.5", "1500000000000000000"}, rows[1])
	assert.Equal(t, "3.0", rows[2][2])

	summary, err := f.GetRows(export.SummarySheet)
	require.NoError(t, err)
	values := map[string]string{}
	for _, r := range summary {
		require.Len(t, r, 2)
		values[r[0]] = r[1]
	}
	assert.Equal(t, "4", values["Campaign"])
	assert.Equal(t, "Library roof", values["Title"])
	assert.Equal(t, "45.00", values["Progress (%)"])
	assert.Equal(t, "2", values["Donations"])
	assert.Equal(t, "4.5", values["Donated total (ETH)"])
	assert.Equal(t, "2027-01-15T08:00:00Z", values["Exported"])
}

func TestDonationsEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, export.Donations(path, campaign.Campaign{Title: "quiet"}, nil, time.Now()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.DonationsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDonationsBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "x.xlsx")
	assert.Error(t, export.Donations(path, campaign.Campaign{}, nil, time.Now()))
}
