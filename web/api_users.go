package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"fxmesh/database"
)

// UserRequest 用户创建/更新请求
type UserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

// createUser 创建用户（仅管理员）
func createUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "请求参数错误: 用户名必填，密码至少8位")
		return
	}

	role := req.Role
	if role == "" {
		role = database.RoleUser
	}
	if role != database.RoleAdmin && role != database.RoleUser {
		respondError(c, http.StatusBadRequest, "角色必须是 admin 或 user")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "密码加密失败")
		return
	}

	user := &database.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := apiDB.CreateUser(c.Request.Context(), user); err != nil {
		respondError(c, http.StatusConflict, "创建用户失败，用户名可能已存在")
		return
	}

	respondSuccess(c, http.StatusCreated, user)
}

// listUsers 用户列表（仅管理员）
func listUsers(c *gin.Context) {
	limit, offset := parsePagination(c)
	users, err := apiDB.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "查询用户列表失败")
		return
	}
	respondSuccess(c, http.StatusOK, users)
}

// deleteUser 删除用户（仅管理员）
func deleteUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := apiDB.DeleteUser(c.Request.Context(), id); err != nil {
		respondError(c, http.StatusInternalServerError, "删除用户失败")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"id": id})
}
