package audit

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang/snappy"
)

var archiveEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// EncodeBatch упаковывает запись пакета в CBOR и сжимает snappy
func EncodeBatch(b BatchRecord) ([]byte, error) {
	raw, err := archiveEncMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("ошибка кодирования пакета %s: %w", b.BatchID, err)
	}
	return snappy.Encode(nil, raw), nil
}

// DecodeBatch распаковывает запись пакета
func DecodeBatch(data []byte) (BatchRecord, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return BatchRecord{}, fmt.Errorf("ошибка распаковки пакета: %w", err)
	}

	var b BatchRecord
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return BatchRecord{}, fmt.Errorf("ошибка декодирования пакета: %w", err)
	}
	return b, nil
}
