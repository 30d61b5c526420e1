package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BaSui01/stategraph/internal/cache"
	"github.com/BaSui01/stategraph/persistence"
	"github.com/BaSui01/stategraph/pipelines/product"
	"github.com/BaSui01/stategraph/pipelines/research"
	"github.com/BaSui01/stategraph/pipelines/travel"
	"github.com/BaSui01/stategraph/workflow"
)

// =============================================================================
// 🖨️ 终端输出
// =============================================================================

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	return "  " + strings.Join(lines, "\n  ")
}

func printPlan(w io.Writer, p travel.Plan) {
	fmt.Fprintln(w, "Travel Plan")
	fmt.Fprintln(w, "===========")
	fmt.Fprintf(w, "City:       %s\n", orDash(p.City))
	fmt.Fprintf(w, "Dates:      %s to %s\n", orDash(p.StartDate), orDash(p.EndDate))
	fmt.Fprintf(w, "Currency:   %s\n", orDash(p.Currency))
	fmt.Fprintf(w, "Hotel cost: %.2f\n", p.HotelCost)
	if p.ExchangeRate != nil {
		fmt.Fprintf(w, "Rate:       %.4f\n", *p.ExchangeRate)
	} else {
		fmt.Fprintln(w, "Rate:       unavailable")
	}
	if p.TotalCost != nil {
		fmt.Fprintf(w, "Total:      %.2f %s\n", *p.TotalCost, p.TargetCurrency)
	} else {
		fmt.Fprintln(w, "Total:      unavailable")
	}
	fmt.Fprintf(w, "\nWeather:\n%s\n", indent(orDash(p.Weather)))
	fmt.Fprintf(w, "\nAttractions:\n%s\n", indent(orDash(strings.Join(p.Attractions, "\n"))))
	fmt.Fprintf(w, "\nItinerary:\n%s\n", indent(orDash(p.Itinerary)))
	fmt.Fprintf(w, "\nSummary:\n%s\n", indent(orDash(p.Summary)))
}

func printResearch(w io.Writer, s workflow.State) {
	fmt.Fprintf(w, "Topic: %s\n\n", orDash(research.Topic.GetOr(s, "")))
	for _, msg := range research.Messages.GetOr(s, nil) {
		fmt.Fprintln(w, msg)
	}
}

func printProduct(w io.Writer, p product.Product) {
	fmt.Fprintf(w, "Product ID:  %s\n", orDash(p.ProductID))
	fmt.Fprintf(w, "Name:        %s\n", orDash(p.ProductName))
	fmt.Fprintf(w, "Category:    %s\n", orDash(p.Category))
	fmt.Fprintf(w, "Description: %s\n", orDash(p.Description))
	fmt.Fprintf(w, "Price text:  %s\n", orDash(p.Price))
	if p.PriceUSD != nil {
		fmt.Fprintf(w, "Price (USD): %.2f\n", *p.PriceUSD)
	} else {
		fmt.Fprintln(w, "Price (USD): -")
	}
	if p.Rating != nil {
		fmt.Fprintf(w, "Rating:      %.1f\n", *p.Rating)
	} else {
		fmt.Fprintln(w, "Rating:      -")
	}
}

// printRunFooter 打印运行 ID 与降级节点
func printRunFooter(w io.Writer, res *workflow.RunResult) {
	if res == nil {
		return
	}
	fmt.Fprintf(w, "\nRun %s", res.RunID)
	if degraded := res.Degraded(); len(degraded) > 0 {
		fmt.Fprintf(w, " (degraded: %s)", strings.Join(degraded, ", "))
	}
	fmt.Fprintln(w)
}

func printRunList(w io.Writer, runs []*persistence.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tWORKFLOW\tSTATUS\tSTARTED\tDURATION\tSTEPS")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Workflow, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			len(r.Path),
		)
	}
	_ = tw.Flush()
}

func printRun(w io.Writer, r *persistence.RunRecord) {
	fmt.Fprintf(w, "Run:      %s\n", r.ID)
	fmt.Fprintf(w, "Workflow: %s\n", r.Workflow)
	fmt.Fprintf(w, "Status:   %s\n", r.Status)
	fmt.Fprintf(w, "Started:  %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", r.Error)
	}
	fmt.Fprintf(w, "Path:     %s\n\n", strings.Join(r.Path, " -> "))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tNODE\tSTATUS\tDURATION\tCHANGED\tERROR")
	for _, n := range r.Nodes {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			n.Step, n.NodeID, n.Status,
			n.Duration.Round(time.Millisecond),
			orDash(strings.Join(n.Changed, ",")),
			orDash(n.Error),
		)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nFinal state:")
	for _, key := range r.FinalState.Keys() {
		v, _ := r.FinalState.Get(key)
		fmt.Fprintf(w, "  %s: %s\n", key, compact(v))
	}
}

// compact 将状态值压成一行，过长时截断
func compact(v any) string {
	if v == nil {
		return "null"
	}
	s := strings.ReplaceAll(fmt.Sprint(v), "\n", " | ")
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

// printStoreStats 打印运行记录存储统计；sql 后端附带连接池快照
func printStoreStats(w io.Writer, s persistence.StoreStats) {
	fmt.Fprintf(w, "  history: backend=%s runs=%d", s.Backend, s.Runs)
	if p := s.Pool; p != nil {
		fmt.Fprintf(w, " max_open=%d open=%d in_use=%d idle=%d wait=%d healthy=%t",
			p.MaxOpen, p.Open, p.InUse, p.Idle, p.WaitCount, p.Healthy)
	}
	fmt.Fprintln(w)
}

func printCacheStats(w io.Writer, s *cache.Stats) {
	fmt.Fprintf(w, "  cache:   keys=%d hits=%d misses=%d memory=%d clients=%d\n",
		s.Keys, s.Hits, s.Misses, s.UsedMemory, s.Connections)
}
