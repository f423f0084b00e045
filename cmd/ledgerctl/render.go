package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/ledger-dashboard/internal/models"
	"github.com/ledger-dashboard/internal/service"
)

const timeLayout = "2006-01-02 15:04:05"

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "..." + h[len(h)-4:]
}

// renderTransactions prints one page of records with a paging footer.
func renderTransactions(w io.Writer, res *service.QueryResult, offset int) {
	if len(res.Transactions) == 0 {
		fmt.Fprintln(w, "No transactions to display.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Time", "Token", "Type", "From", "To", "Amount", "Hash"})
	for _, tx := range res.Transactions {
		t.AppendRow(table.Row{
			formatTime(tx),
			tx.TokenSymbol,
			string(tx.Classification),
			shortHash(tx.From),
			shortHash(tx.To),
			strconv.FormatFloat(tx.Amount, 'f', -1, 64),
			shortHash(tx.Hash),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", fmt.Sprintf("%d-%d of %d", offset+1, offset+len(res.Transactions), res.Total)})
	t.Render()
}

func formatTime(tx *models.Transaction) string {
	ts := tx.Time()
	if ts.IsZero() {
		return ""
	}
	return ts.Format(timeLayout)
}

// renderDashboard prints the dashboard aggregates as a two-column table.
func renderDashboard(w io.Writer, stats *service.DashboardStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"Total balance", fmt.Sprintf("%.2f", stats.TotalBalance)})
	t.AppendRow(table.Row{"Active wallets", stats.ActiveWallets})
	t.AppendRow(table.Row{"Transactions", stats.TotalTransactions})
	t.AppendRow(table.Row{"Monthly PnL", fmt.Sprintf("%.2f", stats.MonthlyPnL)})
	if stats.NativeBalance != nil {
		t.AppendRow(table.Row{"Native balance", fmt.Sprintf("%.6f", *stats.NativeBalance)})
	}
	if stats.NativeValueUSD != nil {
		t.AppendRow(table.Row{"Native value (USD)", fmt.Sprintf("%.2f", *stats.NativeValueUSD)})
	}
	t.Render()
}
