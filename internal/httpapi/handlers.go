package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/and161185/prompt-enhancer/internal/identity"
	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/and161185/prompt-enhancer/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
)

type planResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"displayName"`
	DailyLimit   int       `json:"dailyLimit"`
	MonthlyLimit int       `json:"monthlyLimit"`
	Features     []string  `json:"features"`
}

func toPlanResponse(p *model.Plan) planResponse {
	out := planResponse{
		ID:           p.ID,
		Name:         p.Name,
		DisplayName:  p.DisplayName,
		DailyLimit:   p.DailyLimit,
		MonthlyLimit: p.MonthlyLimit,
		Features:     p.Features,
	}
	if p.UnlimitedDaily() {
		out.DailyLimit = -1
	}
	if p.UnlimitedMonthly() {
		out.MonthlyLimit = -1
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	return out
}

type userResponse struct {
	ID         uuid.UUID      `json:"id"`
	Email      string         `json:"email"`
	FirstName  string         `json:"firstName"`
	LastName   string         `json:"lastName"`
	Plan       planResponse   `json:"plan"`
	Settings   model.Settings `json:"settings"`
	LastActive time.Time      `json:"lastActive"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	abortWith(c, err, h.log)
}

func requester(c *gin.Context) model.Requester {
	return model.Requester{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// currentUser loads the caller's account; it writes the response itself on failure.
func (h *Handler) currentUser(c *gin.Context) (*model.User, bool) {
	st, ok := identity.FromContext(c.Request.Context())
	if !ok {
		h.fail(c, errs.ErrUnauthorized)
		return nil, false
	}
	u, err := h.svc.Users.Resolve(c.Request.Context(), st.Subject)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{"User not found", "USER_NOT_FOUND"})
			return nil, false
		}
		h.fail(c, err)
		return nil, false
	}
	return u, true
}

func (h *Handler) plans(c *gin.Context) {
	ps, err := h.svc.Users.Plans(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]planResponse, 0, len(ps))
	for i := range ps {
		out = append(out, toPlanResponse(&ps[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

type enhanceBody struct {
	OriginalText string `json:"originalText"`
	Context      string `json:"conversationContext"`
	Site         string `json:"site"`
}

func (h *Handler) enhance(c *gin.Context) {
	var body enhanceBody
	if err := decodeStrict(c, &body); err != nil {
		h.fail(c, err)
		return
	}
	st, _ := identity.FromContext(c.Request.Context())
	res, err := h.svc.Enhance.Enhance(c.Request.Context(), service.EnhanceRequest{
		Subject:      st.Subject,
		OriginalText: body.OriginalText,
		Context:      body.Context,
		Site:         body.Site,
		Requester:    requester(c),
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{"User not found", "USER_NOT_FOUND"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) profile(c *gin.Context) {
	st, ok := identity.FromContext(c.Request.Context())
	if !ok {
		h.fail(c, errs.ErrUnauthorized)
		return
	}
	p, err := h.svc.Users.Profile(c.Request.Context(), service.Identity{
		Subject:   st.Subject,
		Email:     st.Email,
		FirstName: st.FirstName,
		LastName:  st.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, userResponse{
		ID:         p.User.ID,
		Email:      p.User.Email,
		FirstName:  p.User.FirstName,
		LastName:   p.User.LastName,
		Plan:       toPlanResponse(p.Plan),
		Settings:   p.User.Settings,
		LastActive: p.User.LastActive,
		CreatedAt:  p.User.CreatedAt,
	})
}

func (h *Handler) deleteAccount(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Users.Delete(c.Request.Context(), u); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted"})
}

func (h *Handler) getSettings(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": u.Settings})
}

func (h *Handler) putSettings(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	var patch service.SettingsPatch
	if err := decodeStrict(c, &patch); err != nil {
		h.fail(c, err)
		return
	}
	s, err := h.svc.Users.UpdateSettings(c.Request.Context(), u, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": s})
}

func (h *Handler) listKeys(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": h.svc.Creds.List(c.Request.Context(), u, requester(c))})
}

// keysBody distinguishes an absent field (leave as is) from an empty string (remove).
type keysBody struct {
	OpenAI    *string `json:"openai"`
	Anthropic *string `json:"anthropic"`
}

func (h *Handler) putKeys(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	var body keysBody
	if err := decodeStrict(c, &body); err != nil {
		h.fail(c, err)
		return
	}
	if body.OpenAI == nil && body.Anthropic == nil {
		h.fail(c, errs.Validationf("At least one API key must be provided"))
		return
	}

	ctx := c.Request.Context()
	actions := map[model.Provider]model.AuditAction{}
	for _, kv := range []struct {
		p   model.Provider
		key *string
	}{{model.ProviderOpenAI, body.OpenAI}, {model.ProviderAnthropic, body.Anthropic}} {
		if kv.key == nil {
			continue
		}
		act, err := h.svc.Creds.Put(ctx, u, kv.p, *kv.key, requester(c))
		if err != nil {
			h.fail(c, err)
			return
		}
		actions[kv.p] = act
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "API keys updated",
		"actions": actions,
		"keys":    h.svc.Creds.List(ctx, u, requester(c)),
	})
}

func (h *Handler) deleteKeys(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	targets := model.Providers
	if q := c.Query("provider"); q != "" {
		p := model.Provider(q)
		if !p.Valid() {
			h.fail(c, errs.Validationf("provider must be one of: openai, anthropic"))
			return
		}
		targets = []model.Provider{p}
	}
	for _, p := range targets {
		if err := h.svc.Creds.SoftDelete(c.Request.Context(), u, p, requester(c)); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "API keys removed"})
}

func (h *Handler) revealKey(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	p := model.Provider(c.Param("provider"))
	key, err := h.svc.Creds.Reveal(c.Request.Context(), u, p, requester(c))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{"API key not configured", "NOT_FOUND"})
			return
		}
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{"provider": p, "apiKey": key})
}

type auditResponse struct {
	Action    model.AuditAction `json:"action"`
	Provider  model.Provider    `json:"provider"`
	At        time.Time         `json:"timestamp"`
	IP        string            `json:"ipAddress,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
}

func (h *Handler) keyAudit(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.svc.Creds.Audit(c.Request.Context(), u.ID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]auditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditResponse{e.Action, e.Provider, e.At, e.IP, e.UserAgent, e.Success, e.Error})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func (h *Handler) history(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", service.DefaultHistoryLimit)
	if err != nil {
		h.fail(c, err)
		return
	}
	res, err := h.svc.History.List(c.Request.Context(), u.ID, model.HistoryFilter{
		Site:     c.Query("site"),
		Provider: model.Provider(c.Query("provider")),
		Search:   c.Query("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) deleteHistory(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		h.fail(c, errs.Validationf("Invalid prompt ID"))
		return
	}
	if err := h.svc.History.Delete(c.Request.Context(), u.ID, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody{"Prompt not found", "NOT_FOUND"})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Prompt deleted"})
}

func (h *Handler) clearHistory(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	n, err := h.svc.History.Clear(c.Request.Context(), u.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "History cleared", "deletedCount": n})
}

func (h *Handler) quota(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	plan, err := h.svc.Users.Plan(c.Request.Context(), u)
	if err != nil {
		h.fail(c, err)
		return
	}
	v, err := h.svc.Quota.View(c.Request.Context(), u, *plan)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Validationf("%s must be an integer", name)
	}
	return n, nil
}
