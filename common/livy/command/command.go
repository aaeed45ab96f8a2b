package command

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
)

// Command is a piece of code that is run verbatim.
type Command struct {
	code string
}

func NewCommand(code string) *Command {
	return &Command{code: code}
}

func (c *Command) String() string {
	return c.code
}

func (c *Command) Code(_ livy.Kind) (string, error) {
	if strings.TrimSpace(c.code) == "" {
		return "", livy.NewBadConfigurationError("cannot run an empty command")
	}

	return c.code, nil
}

// ParseOutput returns the text/plain output of the command. Tabular application/json output, as produced by
// sql sessions, is returned as a table.
func (c *Command) ParseOutput(output *livy.StatementOutput) livy.Result {
	if output.IsError() {
		return livy.ErrorResult(output.Diagnostic())
	}

	if raw, ok := output.Data[livy.MimeApplicationJson]; ok {
		if table, err := tableFromSqlOutput(raw, true); err == nil {
			return livy.TableResult(table)
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return livy.ErrorResult(fmt.Sprintf("could not encode application/json output: %v", err))
		}

		return livy.TextResult(string(encoded))
	}

	if text, ok := output.Data[livy.MimeTextPlain].(string); ok {
		return livy.TextResult(text)
	}

	for mimeType := range output.Data {
		return livy.TextResult(fmt.Sprintf("<%s output>", mimeType))
	}

	return livy.TextResult("")
}
