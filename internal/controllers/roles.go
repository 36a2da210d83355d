package controllers

import "github.com/workloadinsights/backend/internal/models"

var allowedRoles = map[string]struct{}{
	models.RoleAdmin: {},
	models.RoleStaff: {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}
