package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/scusemua/livy-notebook/common/livy"
)

const (
	rowVariable = "livy_notebook_row"
)

var (
	restrictedSqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)^show\s+(databases|schemas)\b`),
		regexp.MustCompile(`(?is)^use\s+\S+`),
	}
)

// SQLQuery is a Spark SQL query. It is translated into code for the kind of the session it runs against,
// and its result is returned as a table.
type SQLQuery struct {
	query   string
	options SamplingOptions
}

func NewSQLQuery(query string, options SamplingOptions) *SQLQuery {
	return &SQLQuery{query: strings.TrimSpace(query), options: options}
}

func (q *SQLQuery) Query() string {
	return q.query
}

func (q *SQLQuery) Options() SamplingOptions {
	return q.options
}

func (q *SQLQuery) String() string {
	return q.query
}

// Code returns code that prints the query result as one JSON record per line, or the query itself for sql sessions.
func (q *SQLQuery) Code(kind livy.Kind) (string, error) {
	if q.query == "" {
		return "", livy.NewBadConfigurationError("cannot run an empty query")
	}

	if err := q.options.Validate(); err != nil {
		return "", err
	}

	switch kind {
	case livy.KindPySpark:
		return q.pysparkCode(), nil
	case livy.KindSpark:
		return q.scalaCode(), nil
	case livy.KindSparkR:
		return q.rCode(), nil
	case livy.KindSQL:
		return q.query, nil
	default:
		return "", livy.NewBadConfigurationError(fmt.Sprintf("cannot run SQL against a session of kind \"%s\"", kind))
	}
}

func (q *SQLQuery) pysparkCode() string {
	var b strings.Builder
	fmt.Fprintf(&b, `spark.sql(u"""%s """).toJSON()`, q.query)
	if q.options.Method == SampleRandom {
		fmt.Fprintf(&b, ".sample(False, %s)", q.options.Fraction)
	}

	if q.options.AllRows() {
		b.WriteString(".collect()")
	} else {
		fmt.Fprintf(&b, ".take(%d)", q.options.MaxRows)
	}

	return fmt.Sprintf("for %s in %s: print(%s)", rowVariable, b.String(), rowVariable)
}

func (q *SQLQuery) scalaCode() string {
	var b strings.Builder
	fmt.Fprintf(&b, `spark.sql("""%s""").toJSON`, q.query)
	if q.options.Method == SampleRandom {
		fmt.Fprintf(&b, ".sample(false, %s)", q.options.Fraction)
	}

	if q.options.AllRows() {
		b.WriteString(".collect")
	} else {
		fmt.Fprintf(&b, ".take(%d)", q.options.MaxRows)
	}

	b.WriteString(".foreach(println)")
	return b.String()
}

func (q *SQLQuery) rCode() string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(q.query)

	df := fmt.Sprintf(`sql("%s")`, escaped)
	if q.options.Method == SampleRandom {
		df = fmt.Sprintf("sample(%s, FALSE, %s)", df, q.options.Fraction)
	}

	if !q.options.AllRows() {
		df = fmt.Sprintf("limit(%s, %d)", df, q.options.MaxRows)
	}

	return fmt.Sprintf(`for (%s in collect(toJSON(%s))$value) { cat(%s, "\n") }`, rowVariable, df, rowVariable)
}

// ParseOutput converts the printed JSON records (or the tabular output of a sql session) into a table.
func (q *SQLQuery) ParseOutput(output *livy.StatementOutput) livy.Result {
	if output.IsError() {
		return livy.ErrorResult(output.Diagnostic())
	}

	if raw, ok := output.Data[livy.MimeApplicationJson]; ok {
		table, err := tableFromSqlOutput(raw, q.options.Coerce)
		if err != nil {
			return livy.ErrorResult(fmt.Sprintf("could not parse the result of the query: %v", err))
		}

		return livy.TableResult(truncate(table, q.options))
	}

	text, _ := output.Data[livy.MimeTextPlain].(string)
	table, err := tableFromRecords(text, q.options.Coerce)
	if err != nil {
		return livy.ErrorResult(fmt.Sprintf("could not parse the result of the query: %v", err))
	}

	return livy.TableResult(truncate(table, q.options))
}

// IsRestrictedSQL returns true for statements that list or switch databases.
func IsRestrictedSQL(code string) bool {
	code = strings.TrimSpace(code)
	for _, pattern := range restrictedSqlPatterns {
		if pattern.MatchString(code) {
			return true
		}
	}

	return false
}
