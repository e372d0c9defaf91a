package cli

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Veraticus/redistrict-impact/internal/aggregate"
	"github.com/Veraticus/redistrict-impact/internal/model"
)

// Section selects one part of a report.
type Section string

// Report sections in print order.
const (
	SectionComposition     Section = "composition"
	SectionCompetitiveness Section = "competitiveness"
	SectionGainsLosses     Section = "gains"
	SectionKnownModeled    Section = "known-modeled"
)

// Sections lists every report section.
var Sections = []Section{SectionComposition, SectionCompetitiveness, SectionGainsLosses, SectionKnownModeled}

// ParseSection validates a section name.
func ParseSection(s string) (Section, error) {
	sec := Section(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Sections, sec) {
		return "", fmt.Errorf("unknown report section %q", s)
	}
	return sec, nil
}

// ReportRenderer writes aggregation reports as styled tables.
type ReportRenderer struct {
	w       io.Writer
	printer *message.Printer
}

// NewReportRenderer creates a renderer formatting numbers for English.
func NewReportRenderer(w io.Writer) *ReportRenderer {
	return &ReportRenderer{w: w, printer: message.NewPrinter(language.English)}
}

// Render writes the chosen sections for the chosen district types.
func (r *ReportRenderer) Render(report *aggregate.Report, types []model.DistrictType, sections []Section) error {
	header := r.printer.Sprintf("%d voters", report.Voters)
	if !report.Modeled {
		header += ", known labels only"
	}
	if _, err := fmt.Fprintln(r.w, FormatTitle("Redistricting impact ("+header+")")); err != nil {
		return err
	}

	for _, t := range types {
		tr, ok := report.Type(t)
		if !ok {
			continue
		}
		for _, sec := range sections {
			var title, body string
			switch sec {
			case SectionComposition:
				title, body = r.composition(tr)
			case SectionCompetitiveness:
				title, body = r.competitiveness(tr)
			case SectionGainsLosses:
				title, body = r.gainsLosses(tr, report.Modeled)
			case SectionKnownModeled:
				if !report.Modeled {
					continue
				}
				title, body = r.knownModeled(tr)
			}
			if _, err := fmt.Fprintf(r.w, "\n%s\n%s\n", BoldStyle.Render(t.Label()+": "+title), body); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *ReportRenderer) composition(tr *aggregate.TypeReport) (string, string) {
	headers := []string{"District", "Map", "Voters", "Republican", "Democrat", "Swing", "Unknown", "R %", "D %", "Rating"}
	var rows [][]string
	for _, t := range []*aggregate.Table{tr.Old, tr.New} {
		for _, c := range t.Districts {
			rows = append(rows, []string{
				strconv.Itoa(c.District),
				string(t.Key.Map),
				r.number(c.Total),
				r.number(c.Republican),
				r.number(c.Democrat),
				r.number(c.Swing),
				r.number(c.Unknown),
				FormatPct(c.RepPct),
				FormatPct(c.DemPct),
				string(aggregate.Classify(c.RepPct, c.DemPct)),
			})
		}
	}
	body := RenderTable(headers, rows)
	if missing := tr.New.Missing + tr.Old.Missing; missing > 0 {
		body += "\n" + FormatWarning(r.printer.Sprintf("%d voter assignments missing (%d old, %d new)", missing, tr.Old.Missing, tr.New.Missing))
	}
	return "district composition", body
}

func (r *ReportRenderer) competitiveness(tr *aggregate.TypeReport) (string, string) {
	headers := []string{"Rating", string(model.OldMap), string(model.NewMap), "Change"}
	rows := make([][]string, 0, len(tr.Comparison.Changes))
	for _, ch := range tr.Comparison.Changes {
		rows = append(rows, []string{
			string(ch.Category),
			r.number(ch.Old),
			r.number(ch.New),
			r.signed(ch.Change),
		})
	}
	return "competitiveness", RenderTable(headers, rows)
}

func (r *ReportRenderer) gainsLosses(tr *aggregate.TypeReport, modeled bool) (string, string) {
	headers := []string{"District", "Republican", "Democrat", "Expected R", "Expected D", "Net R", "Net D", "R change", "Sources"}
	if modeled {
		headers = slices.Insert(headers, 3, "R modeled", "D modeled")
	}
	rows := make([][]string, 0, len(tr.GainsLosses.Districts))
	for _, g := range tr.GainsLosses.Districts {
		row := []string{strconv.Itoa(g.District), r.number(g.Republican), r.number(g.Democrat)}
		if modeled {
			row = append(row, r.number(g.RepublicanModeled), r.number(g.DemocratModeled))
		}
		row = append(row,
			r.printer.Sprintf("%.1f", g.ExpectedRepublican),
			r.printer.Sprintf("%.1f", g.ExpectedDemocrat),
			r.printer.Sprintf("%+.1f", g.NetRepublican),
			r.printer.Sprintf("%+.1f", g.NetDemocrat),
			FormatChange(g.PctChangeRepublican),
			r.sources(g.Sources),
		)
		rows = append(rows, row)
	}
	return "gains and losses", RenderTable(headers, rows)
}

func (r *ReportRenderer) knownModeled(tr *aggregate.TypeReport) (string, string) {
	headers := []string{"District", "Known R %", "All R %", "Shift", "Modeled R", "Modeled D"}
	rows := make([][]string, 0, len(tr.KnownModeled))
	for _, k := range tr.KnownModeled {
		rows = append(rows, []string{
			strconv.Itoa(k.District),
			FormatPct(k.KnownRepPct),
			FormatPct(k.AllRepPct),
			FormatChange(k.RepShift),
			r.number(k.ModeledRepublican),
			r.number(k.ModeledDemocrat),
		})
	}
	return "known vs modeled", RenderTable(headers, rows)
}

// sources lists the largest contributing old districts first.
func (r *ReportRenderer) sources(cs []aggregate.Contribution) string {
	sorted := slices.Clone(cs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Voters > sorted[j].Voters })
	parts := make([]string, 0, len(sorted))
	for i, c := range sorted {
		if i == 3 {
			parts = append(parts, r.printer.Sprintf("+%d more", len(sorted)-3))
			break
		}
		parts = append(parts, r.printer.Sprintf("%d (%d)", c.OldDistrict, c.Voters))
	}
	return strings.Join(parts, ", ")
}

func (r *ReportRenderer) number(n int) string {
	return r.printer.Sprintf("%d", n)
}

func (r *ReportRenderer) signed(n int) string {
	if n == 0 {
		return "0"
	}
	return r.printer.Sprintf("%+d", n)
}

// FormatPct renders a percentage with one decimal, or n/a when undefined.
func FormatPct(p aggregate.Pct) string {
	if !p.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", p.Value)
}

// FormatChange renders a signed percentage-point change.
func FormatChange(p aggregate.Pct) string {
	if !p.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f", p.Value)
}

// RenderStageResults writes one line per stage outcome.
func RenderStageResults(w io.Writer, results []model.StageResult) error {
	for _, res := range results {
		var line string
		switch res.Status {
		case model.StatusCompleted:
			line = FormatSuccess(fmt.Sprintf("%-10s %s", res.Stage, summarizeCounts(res.Counts)))
		case model.StatusSkipped:
			line = FormatSkipped(fmt.Sprintf("%-10s skipped: %s", res.Stage, res.Reason))
		case model.StatusFailed:
			line = FormatError(fmt.Sprintf("%-10s failed: %v", res.Stage, res.Err))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func summarizeCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := message.NewPrinter(language.English)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, p.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
