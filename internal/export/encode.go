package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// EncodeCSV writes records as CSV to w, one line per record, columns in headers order.
//
// Every cell is converted to text before the first byte is written, so a value that
// cannot be serialised fails the call with ErrUnserializableValue and w stays untouched.
func EncodeCSV(w io.Writer, records []Record, headers []Header) error {
	if err := checkHeaders(headers); err != nil {
		return err
	}

	rows, err := renderRows(records, headers)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	bw.Write(BOM)
	for j, h := range headers {
		if j > 0 {
			bw.WriteByte(',')
		}
		writeField(bw, h.Label)
	}
	for _, row := range rows {
		bw.WriteByte('\n')
		for j, cell := range row {
			if j > 0 {
				bw.WriteByte(',')
			}
			writeField(bw, cell)
		}
	}
	// bufio.Writer keeps the first error; Flush reports it.
	return bw.Flush()
}

// renderRows converts every cell to text, failing on the first value that has no text form.
func renderRows(records []Record, headers []Header) ([][]string, error) {
	rows := make([][]string, len(records))
	for i, rec := range records {
		row := make([]string, len(headers))
		for j, h := range headers {
			text, err := textOf(rec[h.Key])
			if err != nil {
				return nil, fmt.Errorf("%w: record %d, key %q: %v", ErrUnserializableValue, i, h.Key, err)
			}
			row[j] = text
		}
		rows[i] = row
	}
	return rows, nil
}

var stringerType = reflect.TypeFor[fmt.Stringer]()

func checkHeaders(headers []Header) error {
	if len(headers) == 0 {
		return ErrNoHeaders
	}
	for i, h := range headers {
		if h.Key == "" {
			return fmt.Errorf("%w (position %d)", ErrInvalidHeader, i)
		}
	}
	return nil
}

func writeField(bw *bufio.Writer, s string) {
	bw.WriteByte('"')
	bw.WriteString(strings.ReplaceAll(s, `"`, `""`))
	bw.WriteByte('"')
}

// maxNesting bounds pointer and slice nesting so a self-referencing value fails instead
// of overflowing the stack
const maxNesting = 32

// textOf renders a cell value. Absent and nil values (including typed nil pointers)
// become the empty string.
func textOf(v any) (string, error) {
	return textAt(v, 0)
}

func textAt(v any, depth int) (string, error) {
	if depth > maxNesting {
		return "", fmt.Errorf("value nested deeper than %d levels", maxNesting)
	}
	if v == nil {
		return "", nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", nil
		}
		// Only a pointer-receiver String() keeps the pointer; everything else is dereferenced.
		if _, ok := v.(fmt.Stringer); !ok || rv.Elem().Type().Implements(stringerType) {
			return textAt(rv.Elem().Interface(), depth+1)
		}
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case []byte:
		return string(t), nil
	case time.Time:
		return t.Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return t.String(), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return formatFloat(rv.Float(), 32), nil
	case reflect.Float64:
		return formatFloat(rv.Float(), 64), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes()), nil
		}
		return joinElems(rv, depth)
	case reflect.Array:
		return joinElems(rv, depth)
	}
	return "", fmt.Errorf("unsupported type %T", v)
}

// formatFloat renders f the way the portal front-end prints numbers: plain decimals in
// [1e-6, 1e21), exponent form outside it (1e+21, 1.5e-7), and NaN/Infinity spelled out.
func formatFloat(f float64, bitSize int) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	if abs := math.Abs(f); abs >= 1e21 || abs < 1e-6 {
		mantissa, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, bitSize), "e")
		return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(f, 'f', -1, bitSize)
}

func joinElems(rv reflect.Value, depth int) (string, error) {
	parts := make([]string, rv.Len())
	for i := range parts {
		text, err := textAt(rv.Index(i).Interface(), depth+1)
		if err != nil {
			return "", err
		}
		parts[i] = text
	}
	return strings.Join(parts, ","), nil
}
