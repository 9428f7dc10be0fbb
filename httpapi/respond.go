package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowflow/auth"
	"escrowflow/dispute"
	"escrowflow/escrow"
	"escrowflow/juror"
	"escrowflow/reputation"
)

// envelope is the uniform response shape.
type envelope struct {
	Success    bool        `json:"success"`
	Data       interface{} `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

func respondPage(c *gin.Context, data interface{}, total, limit, offset int) {
	c.JSON(http.StatusOK, envelope{
		Success:    true,
		Data:       data,
		Pagination: &pagination{Total: total, Limit: limit, Offset: offset},
	})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), envelope{Success: false, Message: err.Error()})
}

func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Message: msg})
}

// statusFor maps domain errors onto HTTP status codes. Unknown errors are
// internal.
func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, dispute.ErrEscrowNotFound),
		errors.Is(err, reputation.ErrNotFound),
		errors.Is(err, juror.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, escrow.ErrNotParty),
		errors.Is(err, dispute.ErrForbidden),
		errors.Is(err, dispute.ErrNotJuror):
		return http.StatusForbidden

	case errors.Is(err, escrow.ErrNotActive),
		errors.Is(err, dispute.ErrBadStatus),
		errors.Is(err, dispute.ErrAlreadyVoted),
		errors.Is(err, dispute.ErrDuplicate),
		errors.Is(err, juror.ErrAlreadyRegistered),
		errors.Is(err, juror.ErrNotActive),
		errors.Is(err, reputation.ErrBadgeExists),
		errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized

	case errors.Is(err, escrow.ErrMissingParty),
		errors.Is(err, escrow.ErrSameParty),
		errors.Is(err, escrow.ErrBadAmount),
		errors.Is(err, escrow.ErrMissingTerms),
		errors.Is(err, escrow.ErrMissingEvidence),
		errors.Is(err, dispute.ErrMissingParty),
		errors.Is(err, dispute.ErrSameParty),
		errors.Is(err, dispute.ErrMissingEvidence),
		errors.Is(err, dispute.ErrInvalidVote),
		errors.Is(err, dispute.ErrNoJurors),
		errors.Is(err, dispute.ErrJurorConflict),
		errors.Is(err, juror.ErrStakeTooLow),
		errors.Is(err, juror.ErrEmptyAddress),
		errors.Is(err, reputation.ErrEmptyUser),
		errors.Is(err, reputation.ErrUnknownAction),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrBadInput):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
