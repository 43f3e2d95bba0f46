package eod

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"seller-market/internal/types"
)

// writeSummaryCSV writes one row per order followed by a TOTAL row. The file
// is rewritten on every reconciliation of the same day.
func writeSummaryCSV(path string, s Summary, orders []types.OrderResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".summary-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	headers := []string{"tracking_number", "serial_number", "isin", "symbol", "side", "price",
		"volume", "executed_volume", "remained_volume", "state", "state_desc", "created", "created_shamsi", "net_amount"}
	if err := w.Write(headers); err != nil {
		tmp.Close()
		return err
	}
	for _, o := range orders {
		rec := []string{
			strconv.FormatInt(o.TrackingNumber, 10),
			strconv.FormatInt(o.SerialNumber, 10),
			o.ISIN,
			o.Symbol,
			o.Side.String(),
			strconv.FormatInt(o.Price, 10),
			strconv.FormatInt(o.Volume, 10),
			strconv.FormatInt(o.ExecutedVolume, 10),
			strconv.FormatInt(o.RemainedVolume, 10),
			strconv.Itoa(o.State),
			o.StateDesc,
			o.Created,
			o.CreatedShamsi,
			strconv.FormatInt(o.NetAmount, 10),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Write([]string{"TOTAL", "", "", "", "", "",
		strconv.FormatInt(s.TotalVolume, 10),
		strconv.FormatInt(s.ExecutedVolume, 10),
		strconv.FormatInt(s.RemainedVolume, 10),
		"", s.ExecutedFraction.String(), "", "",
		strconv.FormatInt(s.TotalAmount, 10),
	})
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
