package queue

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultDelimiter separates record fields when none is configured.
const DefaultDelimiter = ":"

const recordFields = 5

// Codec turns records into single log lines and back.
// Field order: attempts, visibleFrom, receiptId, priority, body.
type Codec struct {
	Delimiter string
}

// NewCodec returns a codec for delim, falling back to DefaultDelimiter when empty.
func NewCodec(delim string) (Codec, error) {
	if delim == "" {
		delim = DefaultDelimiter
	}
	if err := ValidateDelimiter(delim); err != nil {
		return Codec{}, err
	}
	return Codec{Delimiter: delim}, nil
}

// ValidateDelimiter rejects delimiters that could appear inside the
// numeric fields or a UUID receipt, or that would break the line format.
func ValidateDelimiter(delim string) error {
	if delim == "" {
		return fmt.Errorf("field delimiter must not be empty")
	}
	if strings.ContainsAny(delim, "\r\n") {
		return fmt.Errorf("field delimiter %q must not contain line breaks", delim)
	}
	if strings.ContainsAny(strings.ToLower(delim), "0123456789abcdef-") {
		return fmt.Errorf("field delimiter %q collides with numeric or receipt characters", delim)
	}
	return nil
}

// Encode renders r as one line without the trailing newline.
func (c Codec) Encode(r Record) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(r.Attempts))
	b.WriteString(c.Delimiter)
	b.WriteString(strconv.FormatInt(r.VisibleFrom, 10))
	b.WriteString(c.Delimiter)
	b.WriteString(r.ReceiptID)
	b.WriteString(c.Delimiter)
	b.WriteString(strconv.Itoa(r.Priority))
	b.WriteString(c.Delimiter)
	b.WriteString(r.Body)
	return b.String()
}

// Decode parses a line produced by Encode. The body takes everything after
// the fourth delimiter. ok is false for lines that are not records.
func (c Codec) Decode(line string) (r Record, ok bool) {
	fields := strings.SplitN(line, c.Delimiter, recordFields)
	if len(fields) < recordFields {
		return Record{}, false
	}

	attempts, err := strconv.Atoi(fields[0])
	if err != nil || attempts < 0 {
		return Record{}, false
	}
	visibleFrom, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Record{}, false
	}
	priority, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, false
	}

	return Record{
		Attempts:    attempts,
		VisibleFrom: visibleFrom,
		ReceiptID:   fields[2],
		Priority:    priority,
		Body:        fields[4],
	}, true
}
