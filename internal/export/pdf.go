/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders alignment reports.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"gopyre/internal/domain"
	"gopyre/internal/registration"
	"gopyre/internal/storage"
)

// RGB is an 8-bit colour.
type RGB struct{ R, G, B uint8 }

// ReportOptions controls the PDF alignment report.
// Units are points (pt); the page is A4 portrait.
type ReportOptions struct {
	// Exaggerate scales displacement vectors in the overview plot. 0 means 1.
	Exaggerate  float64
	TargetColor RGB
	VectorColor RGB
	// MaxOutcomes caps the registration table. 0 means all.
	MaxOutcomes int
	// Now stamps the report; zero means time.Now.
	Now time.Time
}

const (
	pageW  = 595.0
	pageH  = 842.0
	margin = 40.0
	rowH   = 14.0
)

// ExportAlignmentPDF writes a report of the project's control points and the
// given registration outcomes. A relative outPath is placed under the
// project's reports folder.
func ExportAlignmentPDF(ph *storage.ProjectHandle, outcomes []registration.Outcome, outPath string, opt ReportOptions) error {
	if ph == nil {
		return fmt.Errorf("project handle is nil")
	}
	p := ph.Project
	if opt.Exaggerate <= 0 {
		opt.Exaggerate = 1
	}
	if opt.TargetColor == (RGB{}) {
		opt.TargetColor = RGB{R: 0, G: 90, B: 200}
	}
	if opt.VectorColor == (RGB{}) {
		opt.VectorColor = RGB{R: 220, G: 40, B: 40}
	}
	if opt.Now.IsZero() {
		opt.Now = time.Now()
	}
	if opt.MaxOutcomes > 0 && len(outcomes) > opt.MaxOutcomes {
		outcomes = outcomes[:opt.MaxOutcomes]
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: pageW, Ht: pageH}})
	pdf.SetTitle(fmt.Sprintf("%s alignment report", p.Name), false)
	pdf.SetAuthor("gopyre", false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 22, p.Name, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		fmt.Sprintf("Generated: %s", opt.Now.Format(time.RFC3339)),
		fmt.Sprintf("Source: %s", p.Source.Path),
		fmt.Sprintf("Target: %s", p.Target.Path),
		fmt.Sprintf("Transform: %s, %d control points", p.Transform.Type, len(p.Transform.Points)),
	}
	if m := p.Metadata; m.Specimen != "" || m.Section != "" {
		lines = append(lines, fmt.Sprintf("Specimen %s, section %s", m.Specimen, m.Section))
	}
	for _, l := range lines {
		pdf.CellFormat(0, rowH, l, "", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	plotPoints(pdf, p.Transform.Points, opt)

	pdf.AddPage()
	pointTable(pdf, p.Transform.Points)
	if len(outcomes) > 0 {
		pdf.Ln(12)
		outcomeTable(pdf, outcomes)
	}

	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(ph.Root, storage.ReportsDirName, outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// plotPoints draws target positions and their displacement to the source.
func plotPoints(pdf *gofpdf.Fpdf, pts []domain.ControlPoint, opt ReportOptions) {
	x0, y0 := margin, pdf.GetY()
	w := pageW - 2*margin
	h := math.Min(w, pageH-margin-y0)
	pdf.SetDrawColor(160, 160, 160)
	pdf.SetLineWidth(0.5)
	pdf.Rect(x0, y0, w, h, "D")
	if len(pts) == 0 {
		pdf.SetXY(x0, y0+h/2)
		pdf.CellFormat(w, rowH, "no control points", "", 0, "C", false, 0, "")
		return
	}
	b := bounds(pts)
	scale := math.Min((w-20)/math.Max(b.w, 1), (h-20)/math.Max(b.h, 1))
	at := func(y, x float64) (float64, float64) {
		return x0 + 10 + (x-b.minX)*scale, y0 + 10 + (y-b.minY)*scale
	}
	pdf.SetLineWidth(0.8)
	for _, cp := range pts {
		tx, ty := at(cp.TargetY, cp.TargetX)
		dx := (cp.SourceX - cp.TargetX) * opt.Exaggerate * scale
		dy := (cp.SourceY - cp.TargetY) * opt.Exaggerate * scale
		pdf.SetDrawColor(int(opt.VectorColor.R), int(opt.VectorColor.G), int(opt.VectorColor.B))
		pdf.Line(tx, ty, tx+dx, ty+dy)
		pdf.SetFillColor(int(opt.TargetColor.R), int(opt.TargetColor.G), int(opt.TargetColor.B))
		pdf.Circle(tx, ty, 2, "F")
	}
	pdf.SetY(y0 + h + 4)
}

type extent struct{ minX, minY, w, h float64 }

func bounds(pts []domain.ControlPoint) extent {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, cp := range pts {
		minX, maxX = math.Min(minX, cp.TargetX), math.Max(maxX, cp.TargetX)
		minY, maxY = math.Min(minY, cp.TargetY), math.Max(maxY, cp.TargetY)
	}
	return extent{minX: minX, minY: minY, w: maxX - minX, h: maxY - minY}
}

func header(pdf *gofpdf.Fpdf, widths []float64, cols []string) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		pdf.CellFormat(widths[i], rowH, c, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
}

func pointTable(pdf *gofpdf.Fpdf, pts []domain.ControlPoint) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 18, "Control points", "", 1, "L", false, 0, "")
	widths := []float64{40, 75, 75, 75, 75, 75}
	header(pdf, widths, []string{"#", "target y", "target x", "source y", "source x", "distance"})
	for i, cp := range pts {
		d := math.Hypot(cp.SourceY-cp.TargetY, cp.SourceX-cp.TargetX)
		row := []string{
			fmt.Sprint(i),
			fmt.Sprintf("%.2f", cp.TargetY), fmt.Sprintf("%.2f", cp.TargetX),
			fmt.Sprintf("%.2f", cp.SourceY), fmt.Sprintf("%.2f", cp.SourceX),
			fmt.Sprintf("%.2f", d),
		}
		for j, s := range row {
			pdf.CellFormat(widths[j], rowH, s, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func outcomeTable(pdf *gofpdf.Fpdf, outcomes []registration.Outcome) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 18, "Registration results", "", 1, "L", false, 0, "")
	widths := []float64{40, 55, 70, 70, 60, 120}
	header(pdf, widths, []string{"#", "angle", "dy", "dx", "weight", "status"})
	for _, o := range outcomes {
		row := []string{fmt.Sprint(o.Index), "-", "-", "-", "-", status(o)}
		if r := o.Record; r != nil {
			row[1] = fmt.Sprintf("%.1f", r.Angle)
			row[2] = fmt.Sprintf("%.2f", r.Offset.Y)
			row[3] = fmt.Sprintf("%.2f", r.Offset.X)
			row[4] = fmt.Sprintf("%.3f", r.Weight)
		}
		for j, s := range row {
			pdf.CellFormat(widths[j], rowH, s, "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func status(o registration.Outcome) string {
	switch {
	case o.Removed:
		return "removed"
	case o.Applied:
		return "applied"
	default:
		return "skipped"
	}
}
