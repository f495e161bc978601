package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cabletrack/internal/audit/domain"
	authdomain "github.com/smallbiznis/cabletrack/internal/auth/domain"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.authsvc.Register(c.Request.Context(), authdomain.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !res.Created {
		c.JSON(http.StatusOK, gin.H{
			"message":      "User already exists",
			"user":         res.User,
			"access_token": res.AccessToken,
		})
		return
	}

	if s.auditSvc != nil {
		_ = s.auditSvc.Record(c.Request.Context(), auditdomain.Entry{
			ActorType:  auditdomain.ActorTypeUser,
			ActorID:    strconv.FormatInt(res.User.ID, 10),
			Action:     auditdomain.ActionUserRegistered,
			TargetType: "user",
			TargetID:   strconv.FormatInt(res.User.ID, 10),
			Metadata: map[string]any{
				"username": res.User.Username,
				"email":    res.User.Email,
				"role":     string(res.User.Role),
			},
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "User created",
		"user":         res.User,
		"access_token": res.AccessToken,
	})
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"user":         res.User,
		"access_token": res.AccessToken,
		"expires_at":   res.ExpiresAt,
	})
}

func (s *Server) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) ListUsers(c *gin.Context) {
	users, err := s.authsvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) GetUser(c *gin.Context) {
	id, ok := parseIDParam(c.Param("id"))
	if !ok {
		AbortWithError(c, authdomain.ErrUserNotFound)
		return
	}
	user, err := s.authsvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
