package livy

import (
	"fmt"
	"strings"
)

// OutputType describes the payload carried by a Result.
type OutputType int

const (
	OutputText OutputType = iota
	OutputTable
	OutputError
)

func (t OutputType) String() string {
	switch t {
	case OutputText:
		return "text"
	case OutputTable:
		return "table"
	case OutputError:
		return "error"
	default:
		return fmt.Sprintf("OutputType(%d)", int(t))
	}
}

// Table is a tabular statement result. Every row maps column name to value.
type Table struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// Len returns the number of rows in the table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}

	return len(t.Rows)
}

// Result is the (success, output) pair produced by running an Executable against a session.
type Result struct {
	Success bool
	Type    OutputType
	Text    string
	Table   *Table
	Error   string
}

func TextResult(text string) Result {
	return Result{Success: true, Type: OutputText, Text: text}
}

func TableResult(table *Table) Result {
	return Result{Success: true, Type: OutputTable, Table: table}
}

func ErrorResult(msg string) Result {
	return Result{Success: false, Type: OutputError, Error: msg}
}

// Message returns a printable form of the result's payload.
func (r Result) Message() string {
	switch r.Type {
	case OutputError:
		return r.Error
	case OutputTable:
		if r.Table == nil {
			return ""
		}
		return fmt.Sprintf("[%s] (%d rows)", strings.Join(r.Table.Columns, ", "), len(r.Table.Rows))
	default:
		return r.Text
	}
}

// Executable is a stateless unit of code that can be run against a session.
type Executable interface {
	// Code returns the code to submit to a session of the given kind.
	Code(kind Kind) (string, error)

	// ParseOutput converts the output of an "available" statement into a Result.
	ParseOutput(output *StatementOutput) Result
}
