package control

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
)

// Mode selects which fields a Scanner captures
type Mode int

const (
	// Compact captures only Package and Status. Used for large repository
	// indexes where the remaining fields are extracted later by offset.
	Compact Mode = iota
	// Full captures every recognized field
	Full
)

// Recognized field names
const (
	FieldPackage       = "Package"
	FieldVersion       = "Version"
	FieldArchitecture  = "Architecture"
	FieldInstalledSize = "Installed-Size"
	FieldMaintainer    = "Maintainer"
	FieldDepends       = "Depends"
	FieldFilename      = "Filename"
	FieldSize          = "Size"
	FieldHomepage      = "Homepage"
	FieldStatus        = "Status"
	FieldDescription   = "Description"
)

var fullFields = []string{
	FieldPackage,
	FieldVersion,
	FieldArchitecture,
	FieldInstalledSize,
	FieldMaintainer,
	FieldDepends,
	FieldFilename,
	FieldSize,
	FieldHomepage,
	FieldStatus,
}

var compactFields = []string{
	FieldPackage,
	FieldStatus,
}

// Record is one paragraph of a control file
type Record struct {
	Fields map[string]string
	Offset int64 // byte offset of the first line of the record
	Size   int64 // bytes up to and including the terminating blank line
}

// Get returns a field value, or "" when absent
func (r Record) Get(key string) string {
	return r.Fields[key]
}

// Name returns the Package field
func (r Record) Name() string {
	return r.Fields[FieldPackage]
}

// Scanner reads control-file records one at a time. It is a forward-only
// scan and cannot be rewound.
type Scanner struct {
	reader *bufio.Reader
	mode   Mode
	keys   []string

	offset int64 // bytes consumed so far
	record Record
	err    error
	done   bool
}

// NewScanner returns a Scanner reading records from r
func NewScanner(r io.Reader, mode Mode) *Scanner {
	keys := compactFields
	if mode == Full {
		keys = fullFields
	}
	return &Scanner{
		reader: bufio.NewReaderSize(r, 64*1024),
		mode:   mode,
		keys:   keys,
	}
}

// Scan advances to the next record. It returns false at the end of the
// stream or on a read error, which Err reports.
func (s *Scanner) Scan() bool {
	if s.done {
		return false
	}

	fields := make(map[string]string)
	start := s.offset
	var description []string
	inDescription := false

	finish := func() {
		if inDescription {
			fields[FieldDescription] = strings.Join(description, "\n")
		}
	}

	for {
		line, err := s.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			s.err = err
			s.done = true
			return false
		}
		eof := errors.Is(err, io.EOF)

		if len(line) == 0 && eof {
			// End of stream. The last record may lack a trailing blank line.
			s.done = true
			finish()
			if len(fields) == 0 {
				return false
			}
			s.record = Record{Fields: fields, Offset: start, Size: s.offset - start}
			return true
		}

		text := string(trimNewline(line))

		// Blank line terminates a record
		if text == "" {
			if len(fields) == 0 && !inDescription {
				// Blank lines between records belong to nobody
				start = s.offset
				if eof {
					s.done = true
					return false
				}
				continue
			}
			finish()
			s.record = Record{Fields: fields, Offset: start, Size: s.offset - start}
			if eof {
				s.done = true
			}
			return true
		}

		if inDescription {
			if text[0] == ' ' {
				description = append(description, text)
				continue
			}
			fields[FieldDescription] = strings.Join(description, "\n")
			inDescription = false
			description = nil
		}

		if s.mode == Full && strings.HasPrefix(text, FieldDescription+": ") {
			description = []string{strings.TrimPrefix(text, FieldDescription+": ")}
			inDescription = true
			continue
		}

		for _, key := range s.keys {
			if strings.HasPrefix(text, key+": ") {
				fields[key] = text[len(key)+2:]
				break
			}
		}
	}
}

// Record returns the most recent record produced by Scan
func (s *Scanner) Record() Record {
	return s.record
}

// Err returns the first non-EOF error encountered
func (s *Scanner) Err() error {
	return s.err
}

// readLine returns the next line including its newline. At the end of the
// stream it returns whatever was left together with io.EOF.
func (s *Scanner) readLine() ([]byte, error) {
	line, err := s.reader.ReadBytes('\n')
	s.offset += int64(len(line))
	return line, err
}

func trimNewline(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// ParseAll reads every record from r
func ParseAll(r io.Reader, mode Mode) ([]Record, error) {
	var records []Record
	s := NewScanner(r, mode)
	for s.Scan() {
		records = append(records, s.Record())
	}
	return records, s.Err()
}
