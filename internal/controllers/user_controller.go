package controllers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/workloadinsights/backend/internal/database"
	"github.com/workloadinsights/backend/internal/events"
	"github.com/workloadinsights/backend/internal/middleware"
	"github.com/workloadinsights/backend/internal/models"
	"github.com/workloadinsights/backend/internal/utils"
)

type UserController struct {
	DB          *gorm.DB
	Logger      *zap.Logger
	Events      events.Publisher
	CountryCode string
}

var userSorts = map[string]string{
	"created_at": "created_at",
	"full_name":  "full_name",
	"email":      "email",
	"role":       "role",
	"active":     "active",
}

func (uc *UserController) ListUsers(c *gin.Context) {
	p := parseListParams(c, userSorts, "created_at")
	role := strings.TrimSpace(strings.ToLower(c.Query("role")))
	activeStr := strings.TrimSpace(strings.ToLower(c.Query("active")))

	base := uc.DB.Model(&models.User{})
	if p.Q != "" {
		like := likePattern(p.Q)
		base = base.Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ? OR phone_number LIKE ?", like, like, like)
	}
	if role != "" {
		if !IsValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		base = base.Where("role = ?", role)
	}
	if activeStr != "" {
		switch activeStr {
		case "true", "1":
			base = base.Where("active = ?", true)
		case "false", "0":
			base = base.Where("active = ?", false)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active value"})
			return
		}
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}
	var users []models.User
	if err := p.apply(base.Session(&gorm.Session{})).Find(&users).Error; err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}

	meta := p.meta(total)
	if role != "" {
		meta["role"] = role
	}
	if activeStr != "" {
		meta["active"] = activeStr
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "meta": meta})
}

func (uc *UserController) GetUser(c *gin.Context) {
	var u models.User
	if err := uc.DB.Where("id = ?", c.Param("id")).First(&u).Error; err != nil {
		respondDBError(c, uc.Logger, err, "user not found")
		return
	}
	c.JSON(http.StatusOK, u)
}

type createUserRequest struct {
	FullName    string         `json:"full_name"`
	Email       string         `json:"email"`
	Password    FlexibleString `json:"password"`
	PhoneNumber FlexibleString `json:"phone_number"`
	Role        string         `json:"role"`
	Active      *bool          `json:"active"`
}

func (r createUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Email, validation.Required, validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&r.Role, validation.In(models.RoleAdmin, models.RoleStaff)),
	)
}

func (uc *UserController) normalizePhone(raw FlexibleString) (string, error) {
	s := strings.TrimSpace(raw.String())
	if s == "" {
		return "", nil
	}
	phone := utils.NormalizePhone(s, uc.CountryCode)
	if phone == "" {
		return "", validation.Errors{"phone_number": fmt.Errorf("must contain 8 to 15 digits")}
	}
	return phone, nil
}

func (uc *UserController) CreateUser(c *gin.Context) {
	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}
	phone, err := uc.normalizePhone(req.PhoneNumber)
	if err != nil {
		respondValidation(c, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing int64
	if err := uc.DB.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}

	pw, err := utils.HashPassword(req.Password.String())
	if err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleStaff
	}
	user := models.User{
		FullName:    strings.TrimSpace(req.FullName),
		Email:       email,
		PhoneNumber: phone,
		Password:    pw,
		Role:        role,
		Active:      true,
	}
	if err := uc.DB.Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
			return
		}
		respondInternal(c, uc.Logger, err)
		return
	}
	// gorm skips zero values that carry a default tag on insert
	if req.Active != nil && !*req.Active {
		if err := uc.DB.Model(&user).Update("active", false).Error; err != nil {
			respondInternal(c, uc.Logger, err)
			return
		}
	}

	actor, _ := middleware.CurrentUser(c)
	broadcastChange(uc.Events, uc.Logger, events.UserChanged, "", actor.ID)
	c.JSON(http.StatusCreated, user)
}

type updateUserRequest struct {
	FullName    *string         `json:"full_name"`
	Email       *string         `json:"email"`
	Password    *FlexibleString `json:"password"`
	PhoneNumber *FlexibleString `json:"phone_number"`
	Role        *string         `json:"role"`
	Active      *bool           `json:"active"`
}

func (r updateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.NilOrNotEmpty, validation.Length(1, 120)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, validation.Match(emailPattern).Error("must be a valid email address")),
		validation.Field(&r.Password, validation.Length(6, 72)),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.In(models.RoleAdmin, models.RoleStaff)),
	)
}

func (uc *UserController) UpdateUser(c *gin.Context) {
	var u models.User
	if err := uc.DB.Where("id = ?", c.Param("id")).First(&u).Error; err != nil {
		respondDBError(c, uc.Logger, err, "user not found")
		return
	}
	var req updateUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	updates := map[string]interface{}{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != u.Email {
			var n int64
			if err := uc.DB.Model(&models.User{}).Where("email = ? AND id <> ?", email, u.ID).Count(&n).Error; err != nil {
				respondInternal(c, uc.Logger, err)
				return
			}
			if n > 0 {
				c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
				return
			}
		}
		updates["email"] = email
	}
	if req.PhoneNumber != nil {
		phone, err := uc.normalizePhone(*req.PhoneNumber)
		if err != nil {
			respondValidation(c, err)
			return
		}
		updates["phone_number"] = phone
	}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if req.Password != nil {
		if raw := strings.TrimSpace(req.Password.String()); raw != "" {
			pw, err := utils.HashPassword(raw)
			if err != nil {
				respondInternal(c, uc.Logger, err)
				return
			}
			updates["password"] = pw
		}
	}

	if len(updates) > 0 {
		if err := uc.DB.Model(&u).Updates(updates).Error; err != nil {
			respondDBError(c, uc.Logger, err, "user not found")
			return
		}
	}
	if err := uc.DB.First(&u, "id = ?", u.ID).Error; err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}

	actor, _ := middleware.CurrentUser(c)
	broadcastChange(uc.Events, uc.Logger, events.UserChanged, "", actor.ID)
	c.JSON(http.StatusOK, u)
}

// DeleteUser removes the account with its tokens and assignments. Activities
// the user reported stay; their primary assignee pointer is cleared.
func (uc *UserController) DeleteUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("id"))
	actor, _ := middleware.CurrentUser(c)
	if userID == actor.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}
	var u models.User
	if err := uc.DB.Where("id = ?", userID).First(&u).Error; err != nil {
		respondDBError(c, uc.Logger, err, "user not found")
		return
	}

	var reported int64
	if err := uc.DB.Model(&models.Activity{}).Where("user_id = ?", userID).Count(&reported).Error; err != nil {
		respondInternal(c, uc.Logger, err)
		return
	}
	if reported > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "user has reported activities; deactivate instead"})
		return
	}

	err := uc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.ActivityAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Activity{}).Where("assigned_to_user_id = ?", userID).Update("assigned_to_user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ActivityUpdate{}).Where("author_id = ?", userID).Update("author_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id_ref = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id_ref = ?", userID).Delete(&models.ApiKey{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Delete(&models.User{}).Error
	})
	if err != nil {
		respondDBError(c, uc.Logger, err, "user not found")
		return
	}
	broadcastChange(uc.Events, uc.Logger, events.UserChanged, "", actor.ID)
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type userImportError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

func parseBoolDefaultTrue(val string) (bool, bool) {
	if val == "" {
		return true, false
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "yes", "y", "aktif":
		return true, true
	case "false", "0", "no", "n", "nonaktif", "inactive":
		return false, true
	default:
		return true, false
	}
}

// ImportUsers bulk-creates staff from a CSV upload (multipart field "file").
// Header columns: full_name, email, password, phone_number, role, active.
// The last three are optional. Rows fail individually.
func (uc *UserController) ImportUsers(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(10 << 20); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
		return
	}
	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are allowed"})
		return
	}
	data, err := io.ReadAll(file)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty or unreadable"})
		return
	}

	// Spreadsheet exports vary: CRLF, bare CR, a BOM, and ';' as separator.
	data = bytes.ReplaceAll(data, []byte{'\r', '\n'}, []byte{'\n'})
	data = bytes.ReplaceAll(data, []byte{'\r'}, []byte{'\n'})
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.Contains(firstLine, []byte{';'}) && !bytes.Contains(firstLine, []byte{','}) {
		reader.Comma = ';'
	}

	header, err := reader.Read()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read header"})
		return
	}
	headerIdx := make(map[string]int, len(header))
	for idx, col := range header {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(col), "\"'"))
		if key != "" {
			headerIdx[key] = idx
		}
	}
	for _, key := range []string{"full_name", "email", "password"} {
		if _, ok := headerIdx[key]; !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("missing header column: %s", key)})
			return
		}
	}
	getVal := func(record []string, key string) string {
		idx, ok := headerIdx[key]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var (
		totalRows   int
		createdRows int
		failures    = []userImportError{}
	)
	rowNum := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			failures = append(failures, userImportError{Row: rowNum, Error: fmt.Sprintf("failed to read row: %v", err)})
			continue
		}
		totalRows++

		req := createUserRequest{
			FullName:    getVal(row, "full_name"),
			Email:       strings.ToLower(getVal(row, "email")),
			Password:    FlexibleString(getVal(row, "password")),
			PhoneNumber: FlexibleString(getVal(row, "phone_number")),
			Role:        strings.ToLower(getVal(row, "role")),
		}
		fail := func(msg string) {
			failures = append(failures, userImportError{Row: rowNum, Email: req.Email, Error: msg})
		}
		if err := req.Validate(); err != nil {
			fail(err.Error())
			continue
		}
		phone, err := uc.normalizePhone(req.PhoneNumber)
		if err != nil {
			fail(err.Error())
			continue
		}
		activeStr := getVal(row, "active")
		active, provided := parseBoolDefaultTrue(activeStr)
		if activeStr != "" && !provided {
			fail("invalid active value")
			continue
		}
		if req.Role == "" {
			req.Role = models.RoleStaff
		}

		var exists int64
		if err := uc.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&exists).Error; err != nil {
			fail(fmt.Sprintf("failed to check existing user: %v", err))
			continue
		}
		if exists > 0 {
			fail("email already exists")
			continue
		}
		hashed, err := utils.HashPassword(req.Password.String())
		if err != nil {
			fail("failed to hash password")
			continue
		}
		user := models.User{
			FullName:    req.FullName,
			Email:       req.Email,
			PhoneNumber: phone,
			Password:    hashed,
			Role:        req.Role,
			Active:      true,
		}
		err = uc.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
			if !active {
				return tx.Model(&user).Update("active", false).Error
			}
			return nil
		})
		if err != nil {
			fail(fmt.Sprintf("failed to insert user: %v", err))
			continue
		}
		createdRows++
	}

	if createdRows > 0 {
		actor, _ := middleware.CurrentUser(c)
		broadcastChange(uc.Events, uc.Logger, events.UserChanged, "", actor.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"total":    totalRows,
		"inserted": createdRows,
		"errors":   failures,
	})
}
