package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	compliancedomain "github.com/dixis/taxengine/internal/compliance/domain"
	"github.com/dixis/taxengine/internal/compliance/export"
	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/gin-gonic/gin"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatPDF  = "pdf"
)

type complianceReportQuery struct {
	From   string `form:"from"`
	To     string `form:"to"`
	Format string `form:"format"`
}

type generateComplianceReportRequest struct {
	From    string                           `json:"from"`
	To      string                           `json:"to"`
	Results []taxdomain.TaxCalculationResult `json:"results"`
}

// GetComplianceReport reports over the tenant's issued invoices in [from, to).
func (s *Server) GetComplianceReport(c *gin.Context) {
	var query complianceReportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	format, ok := parseReportFormat(query.Format)
	if !ok {
		AbortWithError(c, newValidationError("format", "invalid_format", "format must be json, csv or pdf"))
		return
	}
	start, end, err := parsePeriod(query.From, query.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.complianceSvc.GenerateForTenant(c.Request.Context(), start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.writeReport(c, report, format)
}

// GenerateComplianceReport reports over calculation results supplied by the caller.
func (s *Server) GenerateComplianceReport(c *gin.Context) {
	var req generateComplianceReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	start, end, err := parsePeriod(req.From, req.To)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	report, err := s.complianceSvc.Generate(c.Request.Context(), req.Results, start, end)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) writeReport(c *gin.Context, report compliancedomain.Report, format string) {
	name := fmt.Sprintf("vat-report-%s-%s", report.Period.Start.Format(dateOnlyLayout), report.Period.End.Format(dateOnlyLayout))

	switch format {
	case formatCSV:
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, report); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, name))
		c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	case formatPDF:
		document, err := s.pdf.GenerateComplianceReport(c.Request.Context(), report)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, name))
		c.Data(http.StatusOK, "application/pdf", document)
	default:
		c.JSON(http.StatusOK, gin.H{"data": report})
	}
}

func parseReportFormat(raw string) (string, bool) {
	switch f := strings.ToLower(strings.TrimSpace(raw)); f {
	case "":
		return formatJSON, true
	case formatJSON, formatCSV, formatPDF:
		return f, true
	default:
		return "", false
	}
}
