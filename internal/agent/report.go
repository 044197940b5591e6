package agent

import (
	"fmt"
	"io"
	"time"

	"github.com/Hara602/rootkitSentry/internal/model"
	"github.com/Hara602/rootkitSentry/internal/scan"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	successStyle = color.New(color.Green, color.OpBold)
	dangerStyle  = color.New(color.Red, color.OpBold)
	warningStyle = color.New(color.Yellow, color.OpBold)
	headerStyle  = color.New(color.Cyan, color.OpBold)
)

// Print 控制台报告：表定位结果、异常表格、汇总
func Print(w io.Writer, r *scan.Report) {
	fmt.Fprint(w, headerStyle.Sprintf("\n[+] Integrity scan %s (%s)\n", r.SessionID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)))

	switch {
	case r.Table == nil:
		fmt.Fprint(w, warningStyle.Sprintf("[-] sys_call_table not located\n"))
	case r.Table.Degraded:
		fmt.Fprint(w, warningStyle.Sprintf("[+] sys_call_table @ 0x%016x (unbounded search)\n", r.Table.BaseAddress))
	default:
		fmt.Fprint(w, successStyle.Sprintf("[+] sys_call_table @ 0x%016x\n", r.Table.BaseAddress))
	}

	if len(r.Anomalies) == 0 {
		fmt.Fprint(w, successStyle.Sprintf("[✓] No anomalies found\n"))
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Severity", "Kind", "Detail"})
		table.SetAutoWrapText(false)
		for _, a := range r.Anomalies {
			table.Append([]string{a.Severity.String(), a.Kind.String(), a.Detail})
		}
		table.Render()
	}

	s := r.Summary
	fmt.Fprint(w, headerStyle.Sprintf("\n[+] Summary: %d anomalies\n", s.Total))
	if s.Criticals > 0 {
		fmt.Fprint(w, dangerStyle.Sprintf("    %s: %d\n", model.Critical, s.Criticals))
	}
	if s.Warnings > 0 {
		fmt.Fprint(w, warningStyle.Sprintf("    %s: %d\n", model.Warning, s.Warnings))
	}
	if s.Status != 0 {
		fmt.Fprint(w, dangerStyle.Sprintf("[!] Scan aborted (status %d)\n", s.Status))
	}
}
