package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/livy/controller"
	"github.com/scusemua/livy-notebook/common/livy/request"
	"github.com/scusemua/livy-notebook/common/livy/session"
	"github.com/scusemua/livy-notebook/common/utils"
)

// renderTable renders rows of cells as aligned columns.
func renderTable(header []string, rows [][]string, cellStyle func(col int, cell string) lipgloss.Style) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = utils.TableHeaderStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	b.WriteString("\n")

	for _, row := range rows {
		cells = cells[:0]
		for i, cell := range row {
			if i >= len(widths) {
				break
			}

			style := utils.TableCellStyle
			if cellStyle != nil {
				style = cellStyle(i, cell).Inherit(utils.TableCellStyle)
			}
			cells = append(cells, style.Width(widths[i]+2).Render(cell))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}

	return b.String()
}

func printSessions(w io.Writer, sessions []*session.Session) {
	if len(sessions) == 0 {
		_, _ = fmt.Fprintln(w, utils.GrayStyle.Render("No sessions."))
		return
	}

	header := []string{"ID", "NAME", "KIND", "STATUS", "APPLICATION", "SPARK UI"}
	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, []string{
			fmt.Sprintf("%d", sess.Id()),
			sess.Name(),
			string(sess.Kind()),
			string(sess.Status()),
			sess.AppId(),
			sess.SparkUiUrl(),
		})
	}

	_, _ = fmt.Fprint(w, renderTable(header, rows, func(col int, cell string) lipgloss.Style {
		if col == 3 {
			return utils.StatusStyle(cell)
		}

		return lipgloss.NewStyle()
	}))
}

func printResult(w io.Writer, result livy.Result) {
	switch result.Type {
	case livy.OutputError:
		_, _ = fmt.Fprintln(w, utils.RedStyle.Render(result.Error))
	case livy.OutputTable:
		if result.Table == nil || len(result.Table.Columns) == 0 {
			_, _ = fmt.Fprintln(w, utils.GrayStyle.Render("No rows."))
			return
		}

		rows := make([][]string, 0, result.Table.Len())
		for _, record := range result.Table.Rows {
			row := make([]string, 0, len(result.Table.Columns))
			for _, column := range result.Table.Columns {
				row = append(row, fmt.Sprintf("%v", record[column]))
			}
			rows = append(rows, row)
		}

		_, _ = fmt.Fprint(w, renderTable(result.Table.Columns, rows, nil))
		_, _ = fmt.Fprintln(w, utils.GrayStyle.Render(fmt.Sprintf("%d row(s)", result.Table.Len())))
	default:
		_, _ = fmt.Fprintln(w, result.Text)
	}
}

func printInfo(ctx context.Context, ctrl *controller.Controller, sessionName string) error {
	id, err := ctrl.GetSessionIdForClient(sessionName)
	if err != nil {
		return err
	}

	logs, err := ctrl.GetLogs(ctx, sessionName)
	if err != nil {
		return err
	}

	appId, _ := ctrl.GetAppId(sessionName)
	sparkUiUrl, _ := ctrl.GetSparkUiUrl(sessionName)
	driverLogUrl, _ := ctrl.GetDriverLogUrl(sessionName)

	fmt.Printf("%s %s\n", utils.BoldStyle.Render("Session:"), sessionName)
	fmt.Printf("%s %d\n", utils.BoldStyle.Render("Id:"), id)
	fmt.Printf("%s %s\n", utils.BoldStyle.Render("Application:"), appId)
	fmt.Printf("%s %s\n", utils.BoldStyle.Render("Spark UI:"), sparkUiUrl)
	fmt.Printf("%s %s\n", utils.BoldStyle.Render("Driver log:"), driverLogUrl)
	fmt.Println(utils.BoldStyle.Render("Log:"))
	for _, line := range logs {
		fmt.Println(utils.GrayStyle.Render(line))
	}

	for _, info := range ctrl.SessionsInfo() {
		fmt.Println(info)
	}

	return nil
}

func printReply(w io.Writer, reply *request.Reply) error {
	m, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(w, string(m))

	if reply.Status != request.StatusOk {
		return fmt.Errorf("request failed: %s", reply.Message)
	}

	return nil
}
