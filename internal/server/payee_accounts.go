package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/rigmarket/internal/ledger/domain"
	payeedomain "github.com/smallbiznis/rigmarket/internal/payee/domain"
	"github.com/smallbiznis/rigmarket/pkg/db/pagination"
)

func (s *Server) ProvisionPayeeAccount(c *gin.Context) {
	var req payeedomain.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payeeSvc.Provision(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

type onboardingLinkRequest struct {
	RefreshURL string `json:"refresh_url"`
	ReturnURL  string `json:"return_url"`
}

func (s *Server) CreateOnboardingLink(c *gin.Context) {
	var req onboardingLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.payeeSvc.CreateOnboardingLink(c.Request.Context(), payeedomain.OnboardingLinkRequest{
		OwnerID:    c.Param("id"),
		RefreshURL: req.RefreshURL,
		ReturnURL:  req.ReturnURL,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListPayeeLedgerEntries(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be between 1 and 250"))
		return
	}

	resp, err := s.ledgerSvc.ListByOwner(c.Request.Context(), ledgerdomain.ListOwnerEntriesRequest{
		OwnerID:   c.Param("id"),
		PageToken: query.PageToken,
		PageSize:  int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
