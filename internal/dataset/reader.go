package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/ianaindex"

	taberrors "tabula/internal/errors"
	"tabula/internal/utils"
)

// delimitedExtensions maps plain-text extensions to their cell delimiter.
var delimitedExtensions = map[string]rune{
	".csv": ',',
	".tsv": '\t',
}

// excelExtensions are the workbook formats handed to the xlsx reader, which
// ignores any requested text encoding.
var excelExtensions = map[string]bool{
	".xls":  true,
	".xlsx": true,
	".xlsm": true,
	".xlsb": true,
	".odf":  true,
	".ods":  true,
	".odt":  true,
}

// encodingAliases maps detector charset names to their IANA registry names.
var encodingAliases = map[string]string{
	"gb-18030": "gb18030",
}

// Reader loads tabular files into Tables. When the requested encoding cannot
// decode a file it consults a Detector and retries each candidate in
// confidence order.
type Reader struct {
	detector      *Detector
	detectTimeout time.Duration
	logger        *utils.Logger
}

// ReaderOption customises a Reader.
type ReaderOption func(*Reader)

// WithRetryDetectTimeout sets the detection budget ReadTable grants when it
// retries a failed decode.
func WithRetryDetectTimeout(timeout time.Duration) ReaderOption {
	return func(r *Reader) {
		if timeout > 0 {
			r.detectTimeout = timeout
		}
	}
}

// NewReader creates a Reader backed by the given detector. A nil detector is
// replaced with a default one.
func NewReader(detector *Detector, opts ...ReaderOption) *Reader {
	if detector == nil {
		detector = NewDetector()
	}
	r := &Reader{
		detector:      detector,
		detectTimeout: DefaultRetryDetectTimeout,
		logger:        utils.NewComponentLogger("tabular-reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadOption customises a single ReadTable call.
type ReadOption func(*readOptions)

type readOptions struct {
	encoding   string
	autodetect bool
	delimiter  rune
	sheet      string
	nRows      int
}

// WithEncoding forces the initial text encoding instead of UTF-8.
func WithEncoding(encoding string) ReadOption {
	return func(o *readOptions) {
		o.encoding = encoding
	}
}

// WithAutodetect toggles the encoding-detection retry on decode failure.
// It is on by default.
func WithAutodetect(enabled bool) ReadOption {
	return func(o *readOptions) {
		o.autodetect = enabled
	}
}

// WithDelimiter overrides the cell delimiter implied by the file extension.
// Workbook reads ignore it.
func WithDelimiter(delimiter rune) ReadOption {
	return func(o *readOptions) {
		o.delimiter = delimiter
	}
}

// WithSheet selects the workbook sheet to read instead of the first one.
// Delimited reads ignore it.
func WithSheet(name string) ReadOption {
	return func(o *readOptions) {
		o.sheet = name
	}
}

// WithNRows caps the number of data rows read after the header row.
// Zero or negative means no cap.
func WithNRows(n int) ReadOption {
	return func(o *readOptions) {
		o.nRows = n
	}
}

// ReadTable reads the tabular file named by uri, which may be a file: URI or
// a bare path. Decode failures trigger encoding detection and one retry per
// candidate; every other failure aborts immediately. When no candidate
// decodes the file the call fails with UnsupportedEncodingError naming the
// last encoding tried.
func (r *Reader) ReadTable(ctx context.Context, uri string, opts ...ReadOption) (*Table, error) {
	options := readOptions{autodetect: true}
	for _, opt := range opts {
		opt(&options)
	}

	table, err := r.readTable(uri, options.encoding, options)
	if err == nil {
		return table, nil
	}
	var decodeErr *taberrors.DecodeError
	if !errors.As(err, &decodeErr) {
		return nil, err
	}
	if !options.autodetect {
		return nil, &taberrors.UnsupportedEncodingError{Encoding: decodeErr.Encoding, Err: decodeErr}
	}

	path, pathErr := PathFromURI(uri)
	if pathErr != nil {
		return nil, pathErr
	}
	candidates, detectErr := r.detector.DetectFileEncodings(ctx, path, r.detectTimeout)
	if detectErr != nil {
		return nil, detectErr
	}
	r.logger.Info("Retrying %s with %d detected encodings", path, len(candidates))

	lastTried := decodeErr
	for _, candidate := range candidates {
		table, retryErr := r.readTable(uri, candidate.Encoding, options)
		if retryErr == nil {
			r.logger.Debug("Decoded %s as %s", path, candidate.Encoding)
			return table, nil
		}
		var retryDecodeErr *taberrors.DecodeError
		if errors.As(retryErr, &retryDecodeErr) {
			lastTried = retryDecodeErr
			continue
		}
		return nil, retryErr
	}
	return nil, &taberrors.UnsupportedEncodingError{Encoding: lastTried.Encoding, Err: lastTried}
}

// readTable performs one read attempt with one encoding.
func (r *Reader) readTable(uri, encoding string, options readOptions) (*Table, error) {
	path, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(FileExtension(uri))
	if delimiter, ok := delimitedExtensions[ext]; ok {
		if options.delimiter != 0 {
			delimiter = options.delimiter
		}
		return readDelimited(path, delimiter, encoding, options.nRows)
	}
	if excelExtensions[ext] {
		return readWorkbook(path, options.sheet, options.nRows)
	}
	return nil, &taberrors.UnsupportedFileFormatError{Ext: ext}
}

func readDelimited(path string, delimiter rune, encoding string, nRows int) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	decoded, err := decodeBytes(raw, encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.Comma = delimiter
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no columns to parse from %s", path)
	}
	return &Table{Name: filepath.Base(path), Columns: records[0], Rows: capRows(records[1:], nRows)}, nil
}

func readWorkbook(path, sheet string, nRows int) (*Table, error) {
	file, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	if sheet == "" {
		sheets := file.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("no sheets in %s", path)
		}
		sheet = sheets[0]
	}
	rows, err := file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no columns to parse from %s", path)
	}

	columns := rows[0]
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cells := make([]string, len(columns))
		copy(cells, row)
		data = append(data, cells)
	}
	return &Table{Name: filepath.Base(path), Columns: columns, Rows: capRows(data, nRows)}, nil
}

func capRows(rows [][]string, nRows int) [][]string {
	if nRows > 0 && len(rows) > nRows {
		return rows[:nRows]
	}
	return rows
}

// decodeBytes converts raw bytes to UTF-8 text. Decoding is strict: any byte
// sequence the charset cannot represent fails with DecodeError rather than
// being replaced.
func decodeBytes(raw []byte, encoding string) ([]byte, error) {
	name := strings.ToLower(strings.TrimSpace(encoding))
	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}
	if name == "" || name == "utf-8" || name == "utf8" {
		if !utf8.Valid(raw) {
			return nil, &taberrors.DecodeError{Encoding: "utf-8", Err: errors.New("invalid byte sequence")}
		}
		return raw, nil
	}

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, &taberrors.DecodeError{Encoding: encoding, Err: err}
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return nil, &taberrors.DecodeError{Encoding: encoding, Err: errors.New("invalid byte sequence")}
	}
	return decoded, nil
}
