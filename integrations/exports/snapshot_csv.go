package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotCSV renders the snapshot as CSV and returns the payload alongside a
// SHA-256 checksum.
func SnapshotCSV(snap *Snapshot) ([]byte, string, error) {
	if snap == nil {
		return nil, "", fmt.Errorf("exports: nil snapshot")
	}
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"taken_at", "phase", "address", "staked_weight", "pending", "outstanding", "redeemed", "spent", "unspent"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	takenAt := snap.TakenAt.Format(time.RFC3339)
	for _, row := range snap.Rows {
		record := []string{
			takenAt,
			snap.Phase,
			row.Address,
			fmt.Sprintf("%d", row.StakedWeight),
			amountString(row.Pending),
			amountString(row.Outstanding),
			amountString(row.Redeemed),
			amountString(row.Spent),
			amountString(row.Unspent),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

// SnapshotJSONL renders one JSON object per holder.
func SnapshotJSONL(snap *Snapshot) ([]byte, string, error) {
	if snap == nil {
		return nil, "", fmt.Errorf("exports: nil snapshot")
	}
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, row := range snap.Rows {
		payload := map[string]interface{}{
			"taken_at":      snap.TakenAt.Format(time.RFC3339),
			"phase":         snap.Phase,
			"address":       row.Address,
			"staked_weight": row.StakedWeight,
			"pending":       amountString(row.Pending),
			"outstanding":   amountString(row.Outstanding),
			"redeemed":      amountString(row.Redeemed),
			"spent":         amountString(row.Spent),
			"unspent":       amountString(row.Unspent),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}
