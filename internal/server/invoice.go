package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/dixis/taxengine/internal/invoice/domain"
	"github.com/dixis/taxengine/internal/invoice/format"
	"github.com/dixis/taxengine/pkg/db/pagination"
	"github.com/gin-gonic/gin"
)

type listInvoicesQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Type      string `form:"type"`
	BuyerVAT  string `form:"buyer_vat"`
	Overdue   string `form:"overdue"`
	From      string `form:"from"`
	To        string `form:"to"`
}

type cancelInvoiceRequest struct {
	Reason string `json:"reason"`
}

type approveInvoiceRequest struct {
	ApproverID string `json:"approver_id"`
}

type emailInvoiceRequest struct {
	Recipient string `json:"recipient"`
}

func invoiceIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return "", false
	}
	return id, true
}

func itemIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("itemId"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("item_id", "invalid_item_id", "invalid item id"))
		return "", false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body for endpoints whose payload is optional.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		AbortWithError(c, invalidRequestError())
		return false
	}
	return true
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query listInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoiceRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		BuyerVAT: strings.TrimSpace(query.BuyerVAT),
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status := invoicedomain.InvoiceStatus(strings.ToLower(raw))
		if !status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		req.Status = &status
	}
	if raw := strings.TrimSpace(query.Type); raw != "" {
		typ := invoicedomain.InvoiceType(strings.ToLower(raw))
		if !typ.Valid() {
			AbortWithError(c, newValidationError("type", "invalid_type", "invalid type"))
			return
		}
		req.Type = &typ
	}
	overdue, err := parseOptionalBool(query.Overdue)
	if err != nil {
		AbortWithError(c, newValidationError("overdue", "invalid_overdue", "invalid overdue"))
		return
	}
	req.Overdue = overdue != nil && *overdue

	if req.IssuedFrom, err = parseOptionalTime(query.From, false); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	if req.IssuedTo, err = parseOptionalTime(query.To, true); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices, "page_info": resp.PageInfo})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		req.CreatedBy = actorFromRequest(c)
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) UpdateDraftInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req invoicedomain.UpdateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.UpdateDraft(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) DeleteInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	if err := s.invoiceSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) AddInvoiceItem(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req invoicedomain.ItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.AddItem(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) UpdateInvoiceItem(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}
	var req invoicedomain.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.UpdateItem(c.Request.Context(), id, itemID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RemoveInvoiceItem(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	itemID, ok := itemIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.RemoveItem(c.Request.Context(), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.Recalculate)
}

func (s *Server) MarkInvoiceSent(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.MarkSent)
}

func (s *Server) MarkInvoiceViewed(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.MarkViewed)
}

func (s *Server) RefundInvoice(c *gin.Context) {
	s.invoiceAction(c, s.invoiceSvc.Refund)
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req invoicedomain.MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.invoiceSvc.MarkPaid(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req cancelInvoiceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	inv, err := s.invoiceSvc.Cancel(c.Request.Context(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ApproveInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req approveInvoiceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	approver := strings.TrimSpace(req.ApproverID)
	if approver == "" {
		approver = actorFromRequest(c)
	}
	if approver == "" {
		AbortWithError(c, newValidationError("approver_id", "required", "approver_id is required"))
		return
	}

	inv, err := s.invoiceSvc.Approve(c.Request.Context(), id, approver)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CreateCreditNote(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req invoicedomain.CreditNoteRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.CreatedBy) == "" {
		req.CreatedBy = actorFromRequest(c)
	}

	note, err := s.invoiceSvc.CreateCreditNote(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": note})
}

// EmailInvoice mails the invoice PDF and marks a draft as sent.
func (s *Server) EmailInvoice(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}
	var req emailInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inv, err := s.deliverySvc.Send(c.Request.Context(), id, req.Recipient)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListOverdueInvoices(c *gin.Context) {
	invoices, err := s.invoiceSvc.ListOverdue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices})
}

func (s *Server) GetInvoiceStatistics(c *gin.Context) {
	stats, err := s.invoiceSvc.Statistics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	payments, err := s.invoiceSvc.ListPayments(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}

func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	s.invoiceDocument(c, "invoice", s.pdf.GenerateInvoice)
}

func (s *Server) DownloadInvoiceReceipt(c *gin.Context) {
	s.invoiceDocument(c, "receipt", s.pdf.GenerateReceipt)
}

func (s *Server) invoiceAction(c *gin.Context, action func(ctx context.Context, id string) (*invoicedomain.Invoice, error)) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	inv, err := action(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) invoiceDocument(c *gin.Context, kind string, render func(ctx context.Context, inv *invoicedomain.Invoice) ([]byte, error)) {
	id, ok := invoiceIDParam(c)
	if !ok {
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	document, err := render(c.Request.Context(), inv)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, format.DocumentFilename(kind, inv.InvoiceNumber, "pdf")))
	c.Data(http.StatusOK, "application/pdf", document)
}
