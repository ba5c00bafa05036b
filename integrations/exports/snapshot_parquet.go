package exports

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Amounts exceed int64, so they are stored as decimal strings.
type parquetRow struct {
	TakenAt      string `parquet:"name=taken_at, type=BYTE_ARRAY, convertedtype=UTF8"`
	Phase        string `parquet:"name=phase, type=BYTE_ARRAY, convertedtype=UTF8"`
	Address      string `parquet:"name=address, type=BYTE_ARRAY, convertedtype=UTF8"`
	StakedWeight int64  `parquet:"name=staked_weight, type=INT64"`
	Pending      string `parquet:"name=pending, type=BYTE_ARRAY, convertedtype=UTF8"`
	Outstanding  string `parquet:"name=outstanding, type=BYTE_ARRAY, convertedtype=UTF8"`
	Redeemed     string `parquet:"name=redeemed, type=BYTE_ARRAY, convertedtype=UTF8"`
	Spent        string `parquet:"name=spent, type=BYTE_ARRAY, convertedtype=UTF8"`
	Unspent      string `parquet:"name=unspent, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteParquet writes the snapshot to path as a snappy-compressed Parquet file.
func WriteParquet(path string, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("exports: nil snapshot")
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	takenAt := snap.TakenAt.Format(time.RFC3339)
	for _, row := range snap.Rows {
		pr := &parquetRow{
			TakenAt:      takenAt,
			Phase:        snap.Phase,
			Address:      row.Address,
			StakedWeight: int64(row.StakedWeight),
			Pending:      amountString(row.Pending),
			Outstanding:  amountString(row.Outstanding),
			Redeemed:     amountString(row.Redeemed),
			Spent:        amountString(row.Spent),
			Unspent:      amountString(row.Unspent),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: finalize parquet: %w", err)
	}
	return file.Close()
}
