package export

import (
	"bytes"
	"testing"

	"github.com/bawdo/pine/internal/testutil"
	"github.com/bawdo/pine/plugins"
)

func invoiceResult() *plugins.Result {
	return &plugins.Result{
		Columns: []string{"name", "amount"},
		Rows: []plugins.Row{
			{"_id": 1, "name": "a,b", "amount": float64(3)},
		},
	}
}

func TestCSV(t *testing.T) {
	t.Parallel()
	testutil.AssertEqual(t, CSV(invoiceResult()), "name,amount\n\"a,b\",3")
}

func TestCSVQuoting(t *testing.T) {
	t.Parallel()
	res := &plugins.Result{
		Columns: []string{"_id", "note", "n"},
		Rows: []plugins.Row{
			{"_id": 1, "note": `say "hi"`, "n": nil},
			{"_id": 2, "note": "two\nlines", "n": 1.5},
			{"_id": 3, "note": " padded ", "n": true},
		},
	}
	testutil.AssertEqual(t, CSV(res), "note,n\n\"say \"\"hi\"\"\",\n\"two\nlines\",1.5\n padded ,true")
}

func TestCSVEmpty(t *testing.T) {
	t.Parallel()
	testutil.AssertEqual(t, CSV(nil), "")
	testutil.AssertEqual(t, CSV(&plugins.Result{Message: "No results"}), "")
	testutil.AssertEqual(t, CSV(&plugins.Result{Columns: []string{"id"}}), "id")
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	testutil.AssertNoError(t, WriteCSV(&buf, invoiceResult()))
	testutil.AssertEqual(t, buf.String(), "name,amount\n\"a,b\",3")
}

func TestTable(t *testing.T) {
	t.Parallel()
	res := &plugins.Result{
		Columns: []string{"id", "name"},
		Rows: []plugins.Row{
			{"_id": 1, "id": float64(1), "name": "Acme"},
			{"_id": 2, "id": float64(20), "name": nil},
		},
	}
	want := "+----+------+\n" +
		"| id | name |\n" +
		"+----+------+\n" +
		"| 1  | Acme |\n" +
		"| 20 | NULL |\n" +
		"+----+------+\n" +
		"(2 rows)\n"
	testutil.AssertEqual(t, Table(res), want)
}

func TestFormatTable(t *testing.T) {
	t.Parallel()
	testutil.AssertEqual(t, FormatTable(nil, nil), "(0 rows)\n")
	got := FormatTable([]string{"count"}, [][]string{{"7"}})
	testutil.AssertEqual(t, got, "+-------+\n| count |\n+-------+\n| 7     |\n+-------+\n(1 row)\n")
}

func TestCell(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]byte("b"), "b"},
		{float64(3), "3"},
		{2.25, "2.25"},
		{float64(1e21), "1000000000000000000000"},
		{int64(-4), "-4"},
		{false, "false"},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, Cell(tt.in), tt.want)
	}
}
