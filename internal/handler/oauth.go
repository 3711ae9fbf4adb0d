package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/iliyamo/acappella-workshop/internal/model"
	"github.com/iliyamo/acappella-workshop/internal/repository"
	"github.com/iliyamo/acappella-workshop/internal/utils"
)

const (
	stateCookie        = "acw_oauth_state"
	googleUserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
	oauthStateLifetime = 10 * time.Minute
)

// googleProfile is the subset of the OpenID userinfo response we use.
type googleProfile struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// OAuthHandler implements Google sign-in with the authorization-code
// flow.  A successful callback answers with the same token pair as
// password login.
type OAuthHandler struct {
	Auth        *AuthHandler
	Conf        *oauth2.Config
	UserInfoURL string
}

// NewOAuthHandler returns nil when Google sign-in is not configured.
func NewOAuthHandler(a *AuthHandler) *OAuthHandler {
	if !a.Cfg.GoogleEnabled() {
		return nil
	}
	return &OAuthHandler{
		Auth: a,
		Conf: &oauth2.Config{
			ClientID:     a.Cfg.GoogleClientID,
			ClientSecret: a.Cfg.GoogleClientSecret,
			RedirectURL:  a.Cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		UserInfoURL: googleUserInfoURL,
	}
}

// Start redirects to Google with a fresh state bound to a cookie.
func (h *OAuthHandler) Start(c echo.Context) error {
	state, err := utils.NewStateToken()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "state generation failed"})
	}
	c.SetCookie(&http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int(oauthStateLifetime / time.Second),
		HttpOnly: true,
		Secure:   !h.Auth.Cfg.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
	return c.Redirect(http.StatusFound, h.Conf.AuthCodeURL(state))
}

// Callback exchanges the code, resolves the account and issues tokens.
// Accounts are matched by Google id first, then by verified email, which
// links Google onto a password or guest-checkout account.
func (h *OAuthHandler) Callback(c echo.Context) error {
	ck, err := c.Cookie(stateCookie)
	if err != nil || ck.Value == "" || ck.Value != c.QueryParam("state") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid oauth state"})
	}
	c.SetCookie(&http.Cookie{Name: stateCookie, Value: "", Path: "/auth/google", MaxAge: -1})
	code := c.QueryParam("code")
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing code"})
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	tok, err := h.Conf.Exchange(ctx, code)
	if err != nil {
		h.Auth.Logger.Warn().Err(err).Msg("google code exchange failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "google exchange failed"})
	}
	prof, err := h.profile(c, tok)
	if err != nil {
		h.Auth.Logger.Warn().Err(err).Msg("google userinfo failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "google userinfo failed"})
	}

	u, err := h.resolve(c, prof)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "account already linked to another google id"})
		}
		if errors.Is(err, errUnverifiedEmail) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "google email is not verified"})
		}
		h.Auth.Logger.Error().Err(err).Msg("google account resolution failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign-in failed"})
	}
	resp, err := h.Auth.issue(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue tokens failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

var errUnverifiedEmail = errors.New("unverified email")

func (h *OAuthHandler) profile(c echo.Context, tok *oauth2.Token) (googleProfile, error) {
	var p googleProfile
	req, err := http.NewRequestWithContext(c.Request().Context(), http.MethodGet, h.UserInfoURL, nil)
	if err != nil {
		return p, err
	}
	res, err := h.Conf.Client(c.Request().Context(), tok).Do(req)
	if err != nil {
		return p, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return p, fmt.Errorf("userinfo status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(&p); err != nil {
		return p, err
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Sub == "" || p.Email == "" {
		return p, errors.New("userinfo missing sub or email")
	}
	return p, nil
}

func (h *OAuthHandler) resolve(c echo.Context, p googleProfile) (model.User, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	users := h.Auth.Users

	u, err := users.GetByGoogleID(ctx, p.Sub)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.User{}, err
	}
	if !p.EmailVerified {
		return model.User{}, errUnverifiedEmail
	}

	u, err = users.GetByEmail(ctx, p.Email)
	switch {
	case err == nil:
		if err := users.LinkGoogle(ctx, u.ID, p.Sub); err != nil {
			return model.User{}, err
		}
		if u.Name == "" && p.Name != "" {
			_ = users.UpdateName(ctx, u.ID, p.Name)
			u.Name = p.Name
		}
		u.GoogleID = p.Sub
		return u, nil
	case !errors.Is(err, sql.ErrNoRows):
		return model.User{}, err
	}

	id, err := users.CreateGoogle(ctx, p.Email, p.Name, p.Sub)
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Email: p.Email, Name: p.Name, GoogleID: p.Sub, Role: model.RoleParent, IsActive: true}, nil
}
