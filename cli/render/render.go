// Package render prints command payloads as json, yaml or a key/value table.
//
// Without --format, a terminal gets the table and anything else gets json.
// --no-color only affects the table.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/syncbridge/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. The empty string means "choose for me".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer writes payloads in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer reads --format and --no-color from c and writes to stdout.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), os.Stdout), nil
}

// NewRendererWithWriter creates a renderer writing to out.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI hands data to the interactive view for viewType.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

type row struct {
	key, value string
}

func (r *Renderer) renderTable(data any) error {
	rows := flatten(nil, "", reflect.ValueOf(data))
	if len(rows) == 0 {
		_, err := fmt.Fprintln(r.out, "(no results)")
		return err
	}

	width := 0
	for _, rw := range rows {
		width = max(width, len(rw.key)+1)
	}

	keyStyle := lipgloss.NewRenderer(r.out).NewStyle().Bold(!r.noColor)
	for _, rw := range rows {
		key := fmt.Sprintf("%-*s", width, rw.key+":")
		if _, err := fmt.Fprintf(r.out, "%s  %s\n", keyStyle.Render(key), rw.value); err != nil {
			return err
		}
	}
	return nil
}

// flatten turns v into dotted key/value rows (log.level, pool.busy).
// Stringers and scalars are leaves; small maps render inline.
func flatten(rows []row, prefix string, v reflect.Value) []row {
	v = deref(v)
	if !v.IsValid() {
		return rows
	}

	switch {
	case isStringer(v):
		return append(rows, row{strings.TrimSuffix(prefix, "."), formatValue(v)})

	case v.Kind() == reflect.Struct:
		t := v.Type()
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			rows = flatten(rows, prefix+fieldName(f)+".", v.Field(i))
		}
		return rows

	case v.Kind() == reflect.Map && prefix == "":
		for _, k := range sortedKeys(v) {
			rows = append(rows, row{fmt.Sprint(k.Interface()), formatValue(v.MapIndex(k))})
		}
		return rows

	case (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && prefix == "":
		for i := range v.Len() {
			rows = flatten(rows, fmt.Sprintf("%d.", i), v.Index(i))
		}
		return rows

	default:
		return append(rows, row{strings.TrimSuffix(prefix, "."), formatValue(v)})
	}
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func formatValue(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}
	if isStringer(v) {
		return v.Interface().(fmt.Stringer).String()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		parts := make([]string, 0, v.Len())
		for _, k := range sortedKeys(v) {
			parts = append(parts, fmt.Sprintf("%v=%v", k.Interface(), v.MapIndex(k).Interface()))
		}
		return strings.Join(parts, " ")
	case reflect.Struct:
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

func isStringer(v reflect.Value) bool {
	if !v.CanInterface() {
		return false
	}
	_, ok := v.Interface().(fmt.Stringer)
	return ok
}

// sortedKeys orders integer keys numerically and everything else lexically.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch a.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return a.Uint() < b.Uint()
		default:
			return fmt.Sprint(a.Interface()) < fmt.Sprint(b.Interface())
		}
	})
	return keys
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
