// Package formatter renders approval contracts for terminal output.
package formatter

import (
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/hanko/internal/contract"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) FormatApprovals(approvals []*contract.ApprovalContract) string {
	if len(approvals) == 0 {
		return "No approvals found"
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers("ID", "Task", "Decision", "Validation", "Requested By", "Requested At")

	for _, a := range approvals {
		t.Row(
			a.ApprovalID,
			truncateString(a.Task, 30),
			string(a.Decision),
			string(a.AgentValidation),
			truncateString(a.RequestedBy, 20),
			a.RequestTimestamp.Local().Format(time.RFC3339),
		)
	}

	return t.String()
}

func (f *TableFormatter) FormatApproval(a *contract.ApprovalContract) string {
	if a == nil {
		return "No approval found"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.headerStyle
			}
			return f.cellStyle
		})

	t.Row("ID", a.ApprovalID)
	t.Row("Task", truncateString(a.Task, 60))
	t.Row("Requested By", a.RequestedBy)
	t.Row("Environment", a.Environment)
	t.Row("Decision", string(a.Decision))
	t.Row("Validation", string(a.AgentValidation))
	if a.ValidationReason != "" {
		t.Row("Validation Reason", truncateString(a.ValidationReason, 60))
	}
	if a.ApprovedBy != "" {
		t.Row("Decided By", a.ApprovedBy)
	}
	if a.Comment != "" {
		t.Row("Comment", truncateString(a.Comment, 60))
	}
	t.Row("Channel", string(a.Channel))
	t.Row("Requested At", a.RequestTimestamp.Local().Format(time.RFC3339))
	t.Row("Deadline", a.Deadline.Local().Format(time.RFC3339))
	if a.ResolutionTimestamp != nil {
		t.Row("Resolved At", a.ResolutionTimestamp.Local().Format(time.RFC3339))
	}

	if len(a.Context) > 0 {
		keys := make([]string, 0, len(a.Context))
		for k := range a.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+a.Context[k])
		}
		t.Row("Context", truncateString(strings.Join(pairs, ", "), 60))
	}

	return t.String()
}

// truncateString shortens on rune boundaries so multi-byte text in task or
// comment fields never renders as invalid UTF-8.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
