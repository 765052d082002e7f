package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	appLog "holidaysjp/internal/log"
	"holidaysjp/internal/model"
)

// sourceDateLayout matches the CSV's "2024/1/1"; zero padding is optional.
const sourceDateLayout = "2006/1/2"

// ParseCSV decodes a Shift-JIS CSV payload as published by the Cabinet
// Office and returns its holidays keyed by canonical date.
func ParseCSV(raw []byte) (model.HolidayMap, error) {
	return ParseCSVWithEncoding(raw, japanese.ShiftJIS)
}

// ParseCSVWithEncoding is ParseCSV for an arbitrary source encoding. A nil
// enc means raw is already UTF-8.
//
//   - Rows with fewer than two fields are skipped.
//   - Rows whose first field is not a YYYY/M/D date (the header, notes,
//     blank lines) are skipped.
//   - A later row for the same date replaces an earlier one.
//   - Only a decoder failure or broken CSV structure aborts the parse.
func ParseCSVWithEncoding(raw []byte, enc encoding.Encoding) (model.HolidayMap, error) {
	holidays := make(model.HolidayMap)
	if len(raw) == 0 {
		return holidays, nil
	}

	var text []byte
	if enc == nil {
		text = raw
	} else {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding source bytes: %w", model.ErrParse, err)
		}
		// x/text decoders substitute U+FFFD for invalid input instead of
		// failing.
		if bytes.ContainsRune(decoded, utf8.RuneError) && !bytes.ContainsRune(raw, utf8.RuneError) {
			return nil, fmt.Errorf("%w: source bytes are not valid in the expected encoding", model.ErrParse)
		}
		text = decoded
	}
	text = bytes.TrimPrefix(text, []byte("\ufeff"))

	reader := csv.NewReader(bytes.NewReader(text))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	skipped := 0
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %w", model.ErrParse, line, err)
		}

		if len(record) < 2 {
			skipped++
			continue
		}

		d, err := time.Parse(sourceDateLayout, strings.TrimSpace(record[0]))
		if err != nil {
			skipped++
			continue
		}
		holidays[model.DateKey(d)] = strings.TrimSpace(record[1])
	}

	appLog.Debug("source csv parsed", "holidays", len(holidays), "skipped_rows", skipped)
	return holidays, nil
}
