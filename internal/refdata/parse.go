package refdata

import (
	"encoding/json"
	"errors"
	"strings"
)

// The index is published in three shapes: the official nested document, a
// minified list of [code, description] tuples, and a flat list of records.
// ParseIndex detects which one it has and produces a single digits-keyed map,
// so lookup code never sees the format variance.

type indexFormat int

const (
	formatUnknown indexFormat = iota
	formatOfficial
	formatTuples
	formatRecords
)

type officialDocument struct {
	Nomenclaturas []struct {
		Codigo    string `json:"Codigo"`
		Descricao string `json:"Descricao"`
	} `json:"Nomenclaturas"`
}

type flatRecord struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// ParseIndex normalizes any supported payload shape into a code -> description
// map keyed by digits-only codes.
func ParseIndex(payload []byte) (map[string]string, error) {
	format, err := detectFormat(payload)
	if err != nil {
		return nil, err
	}

	index := map[string]string{}
	switch format {
	case formatOfficial:
		var doc officialDocument
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, err
		}
		for _, item := range doc.Nomenclaturas {
			code := digitsOnly(item.Codigo)
			if code != "" {
				index[code] = strings.TrimSpace(item.Descricao)
			}
		}

	case formatTuples:
		var rows [][]string
		if err := json.Unmarshal(payload, &rows); err != nil {
			return nil, err
		}
		for _, row := range rows {
			if len(row) >= 2 {
				code := digitsOnly(row[0])
				if code != "" {
					index[code] = strings.TrimSpace(row[1])
				}
			}
		}

	case formatRecords:
		var records []flatRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, err
		}
		for _, rec := range records {
			code := digitsOnly(rec.Code)
			if code != "" {
				index[code] = strings.TrimSpace(rec.Description)
			}
		}
	}

	if len(index) == 0 {
		return nil, errors.New("refdata: payload contained no records")
	}
	return index, nil
}

func detectFormat(payload []byte) (indexFormat, error) {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return formatUnknown, errors.New("refdata: empty payload")
	}

	if strings.HasPrefix(trimmed, "{") {
		return formatOfficial, nil
	}
	if !strings.HasPrefix(trimmed, "[") {
		return formatUnknown, errors.New("refdata: payload is not a JSON document")
	}

	// Distinguish tuple rows from record objects by the first element.
	var probe []json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return formatUnknown, err
	}
	if len(probe) == 0 {
		return formatUnknown, errors.New("refdata: empty index array")
	}
	first := strings.TrimSpace(string(probe[0]))
	if strings.HasPrefix(first, "[") {
		return formatTuples, nil
	}
	if strings.HasPrefix(first, "{") {
		return formatRecords, nil
	}
	return formatUnknown, errors.New("refdata: unrecognized index element shape")
}
