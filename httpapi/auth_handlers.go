package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"escrowflow/auth"
)

type userView struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name,omitempty"`
	WalletAddress string    `json:"wallet_address"`
	Role          string    `json:"role"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewUser(u auth.User) userView {
	return userView{
		ID:            u.ID.String(),
		Email:         u.Email,
		FullName:      u.FullName,
		WalletAddress: u.WalletAddress,
		Role:          string(u.Role),
		CreatedAt:     u.CreatedAt,
	}
}

type registerRequest struct {
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	Password      string `json:"password"`
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role"`
}

func (s *Server) handleAuthRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	u, token, err := s.accounts.Register(c.Request.Context(), auth.RegisterParams{
		Email:         req.Email,
		FullName:      req.FullName,
		Password:      req.Password,
		WalletAddress: req.WalletAddress,
		Role:          auth.Role(req.Role),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"user": viewUser(u), "token": token})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleAuthLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	u, token, err := s.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"user": viewUser(u), "token": token})
}

func (s *Server) handleAuthMe(c *gin.Context) {
	claims := claimsFrom(c)
	u, err := s.accounts.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, viewUser(u))
}
