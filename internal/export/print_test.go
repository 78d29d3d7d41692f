package export

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLPrinter_RendersEscapedTable(t *testing.T) {
	var buf bytes.Buffer
	p := &HTMLPrinter{
		W:       &buf,
		Title:   "Audit <log>",
		Headers: idActionHeaders,
		Records: []Record{
			{"id": "1", "action": "LOGIN"},
			{"id": "<script>alert(1)</script>"},
		},
	}
	require.NoError(t, p.Print(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `onload="window.print()"`)
	assert.Contains(t, out, "<th>ID</th><th>Action</th>")
	assert.Contains(t, out, "<td>1</td><td>LOGIN</td>")
	assert.Contains(t, out, "Audit &lt;log&gt;")
	assert.NotContains(t, out, "<script>alert(1)</script>")
	assert.Equal(t, 3, strings.Count(out, "<tr>"), "header row plus one per record")
}

func TestHTMLPrinter_NoRecords(t *testing.T) {
	var buf bytes.Buffer
	p := &HTMLPrinter{W: &buf, Title: "Empty", Headers: idActionHeaders}
	require.NoError(t, p.Print(context.Background()))
	assert.Equal(t, 1, strings.Count(buf.String(), "<tr>"))
}

func TestHTMLPrinter_Preconditions(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, (&HTMLPrinter{W: &buf}).Print(context.Background()), ErrNoHeaders)

	p := &HTMLPrinter{W: &buf, Headers: idActionHeaders, Records: []Record{{"id": struct{}{}}}}
	assert.ErrorIs(t, p.Print(context.Background()), ErrUnserializableValue)
	assert.Zero(t, buf.Len())
}

func TestHTMLPrinter_AsServicePrinter(t *testing.T) {
	var buf bytes.Buffer
	svc := NewService(&recordingSink{}, "test")
	err := svc.ExportToPrintArtifact(context.Background(),
		&HTMLPrinter{W: &buf, Title: "t", Headers: idActionHeaders})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "window.print()")
}
