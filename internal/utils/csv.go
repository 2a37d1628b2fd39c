package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"krakenTrailBot/internal/domain"
)

// WriteLedgerToCSV dumps the ledger snapshot using the original spreadsheet
// column layout. Blank cells denote absent CostBasis/RealizedPct.
func WriteLedgerToCSV(records []*domain.PositionRecord, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{
		"Asset", "KrakenAssetCode", "Pair", "PositionSize", "CostBasis", "CurrentPrice",
		"UnrealizedPct", "ATHUnrealizedPct", "Armed", "Status", "RealizedPct", "LastUpdated",
	})

	for _, rec := range records {
		armed := "FALSE"
		if rec.Armed {
			armed = "TRUE"
		}
		writer.Write([]string{
			rec.Asset,
			rec.AssetCode,
			rec.Pair,
			strconv.FormatFloat(rec.PositionSize, 'f', -1, 64),
			optFloat(rec.CostBasis),
			strconv.FormatFloat(rec.CurrentPrice, 'f', -1, 64),
			strconv.FormatFloat(rec.UnrealizedPct, 'f', -1, 64),
			strconv.FormatFloat(rec.ATHUnrealizedPct, 'f', -1, 64),
			armed,
			string(rec.Status),
			optFloat(rec.RealizedPct),
			rec.LastUpdated.Format(time.RFC3339),
		})
	}
	return writer.Error()
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
