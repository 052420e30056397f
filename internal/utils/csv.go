package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"mt5dash/internal/domain"
)

// WriteTradesToCSV exports closed trades for spreadsheet analysis.
func WriteTradesToCSV(trades []domain.ClosedTrade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{
		"position_id", "symbol", "strategy", "side", "open_time", "open_price",
		"close_time", "close_price", "volume", "gross_profit", "commission", "swap", "net_profit",
	})

	for _, t := range trades {
		writer.Write([]string{
			strconv.FormatInt(t.PositionID, 10),
			t.Symbol,
			strconv.FormatInt(int64(t.Strategy), 10),
			string(t.Side),
			t.OpenTime.Format(time.RFC3339),
			strconv.FormatFloat(t.OpenPrice, 'f', -1, 64),
			t.CloseTime.Format(time.RFC3339),
			strconv.FormatFloat(t.ClosePrice, 'f', -1, 64),
			strconv.FormatFloat(t.Volume, 'f', -1, 64),
			strconv.FormatFloat(t.GrossProfit, 'f', -1, 64),
			strconv.FormatFloat(t.Commission, 'f', -1, 64),
			strconv.FormatFloat(t.Swap, 'f', -1, 64),
			strconv.FormatFloat(t.NetProfit, 'f', -1, 64),
		})
	}
	return writer.Error()
}
