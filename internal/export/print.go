package export

import (
	"context"
	"html/template"
	"io"
)

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; font-size: 11px; margin: 16px; }
h1 { font-size: 16px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; vertical-align: top; }
th { background: #eee; }
thead { display: table-header-group; }
tr { page-break-inside: avoid; }
@page { size: landscape; margin: 12mm; }
</style>
</head>
<body onload="window.print()">
<h1>{{.Title}}</h1>
<table>
<thead><tr>{{range .Labels}}<th>{{.}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

// HTMLPrinter renders records as a print-styled HTML table that opens the browser's print
// dialog on load, so the user can save it as PDF. Cell text uses the same conversion as
// the CSV encoder; html/template escapes it.
type HTMLPrinter struct {
	W       io.Writer
	Title   string
	Headers []Header
	Records []Record
}

// Print writes the page to W
func (p *HTMLPrinter) Print(ctx context.Context) error {
	if err := checkHeaders(p.Headers); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	labels := make([]string, len(p.Headers))
	for i, h := range p.Headers {
		labels[i] = h.Label
	}
	rows, err := renderRows(p.Records, p.Headers)
	if err != nil {
		return err
	}

	return printTemplate.Execute(p.W, struct {
		Title  string
		Labels []string
		Rows   [][]string
	}{p.Title, labels, rows})
}
