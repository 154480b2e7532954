package server

import (
	"net/http"
	"strings"

	taxdomain "github.com/dixis/taxengine/internal/tax/domain"
	"github.com/gin-gonic/gin"
)

type calculateTaxRequest struct {
	Items []taxdomain.TaxableItem `json:"items"`
	Buyer taxdomain.Buyer         `json:"buyer"`
}

func (s *Server) GetTaxRates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.resolver.Summary()})
}

// GetPostcodeRates reports whether a five digit Greek postcode is on an
// island and which standard rate applies there.
func (s *Server) GetPostcodeRates(c *gin.Context) {
	postcode := strings.TrimSpace(c.Param("postcode"))
	if len(postcode) != 5 || strings.Trim(postcode, "0123456789") != "" {
		AbortWithError(c, newValidationError("postcode", "invalid", "postcode must be 5 digits"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": s.resolver.ForPostcode(postcode)})
}

// CalculateTax prices a basket without persisting anything.
func (s *Server) CalculateTax(c *gin.Context) {
	var req calculateTaxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.calculator.Calculate(c.Request.Context(), req.Items, req.Buyer)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
