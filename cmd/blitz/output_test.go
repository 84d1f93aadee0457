package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/blitz/internal/console"
	"github.com/jonathan/blitz/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintPagination(t *testing.T) {
	tests := []struct {
		name string
		p    *types.Pagination
		want string
	}{
		{"nil prints nothing", nil, ""},
		{"empty", &types.Pagination{Page: 1}, "No results.\n"},
		{"page line", &types.Pagination{Page: 2, Pages: 3, Total: 45}, "Page 2 of 3 (45 total)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printPagination(&buf, tt.p)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\t c", 10))
	assert.Equal(t, "héllo...", truncate("héllo world", 5))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirm(strings.NewReader(tt.input), &out, "Delete it?")
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Delete it? [y/N]: ", out.String())
	}
}

func TestParseID(t *testing.T) {
	id := uuid.New()
	got, err := parseID(" "+id.String()+" ", "project")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseID("nope", "project")
	assert.EqualError(t, err, `invalid project id "nope"`)

	none, err := optionalID("", "project")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestParseFilters(t *testing.T) {
	raw, err := parseFilters(` {"data_type":"snippets","status":"approved"} `)
	require.NoError(t, err)
	assert.JSONEq(t, `{"data_type":"snippets","status":"approved"}`, string(raw))

	raw, err = parseFilters("")
	require.NoError(t, err)
	assert.Nil(t, raw)

	_, err = parseFilters(`{"colour":"red"}`)
	assert.Error(t, err)
	_, err = parseFilters(`[1,2]`)
	assert.Error(t, err)
}

func TestDefaultExportPath(t *testing.T) {
	id := uuid.MustParse("7f1f8c2e-8f53-4a4e-9a4b-2d0f7f0c1a11")
	assert.Equal(t, "report.csv", defaultExportPath("report.csv", id))
	assert.Equal(t, "passwd", defaultExportPath("../../etc/passwd", id))
	assert.Equal(t, "export-"+id.String(), defaultExportPath("", id))
}

func TestByteSize(t *testing.T) {
	assert.Equal(t, "512 B", byteSize(512))
	assert.Equal(t, "1.5 KiB", byteSize(1536))
	assert.Equal(t, "2.0 MiB", byteSize(2*1024*1024))
}

func TestPrintResult_Mutation(t *testing.T) {
	n := int64(7)
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, &console.Result{Rowcount: &n}))
	assert.Equal(t, "7 row(s) affected\n", buf.String())
}

func TestPrintResult_EmptySet(t *testing.T) {
	p := types.NewPagination(1, 20, 0)
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, &console.Result{Columns: []string{"id"}, Pagination: &p}))
	assert.Equal(t, "id\n(0 rows)\n", buf.String())
}

func TestMarkReplacer(t *testing.T) {
	assert.Equal(t, "our blue widgets ship", markReplacer.Replace("our <mark>blue</mark> <mark>widgets</mark> ship"))
}
