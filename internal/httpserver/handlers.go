package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/radiusdt/partner-portal/internal/auth"
	"github.com/radiusdt/partner-portal/internal/middleware"
	"github.com/radiusdt/partner-portal/internal/portal"
	"go.uber.org/zap"
)

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) days(w http.ResponseWriter, r *http.Request) (int, bool) {
	days, ok := queryInt(r, "days", portal.DefaultWindowDays)
	if !ok {
		s.errorResponse(w, "days must be an integer", http.StatusBadRequest)
	}
	return days, ok
}

// ---- Session ----

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.RecordLogin("invalid")
			s.logger.Info("login rejected", zap.String("remote_addr", s.rl.ClientIP(r)))
		} else {
			s.metrics.RecordLogin("error")
		}
		s.serviceError(w, r, err)
		return
	}
	s.metrics.RecordLogin("success")

	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		MaxAge:   int(time.Until(res.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	s.jsonResponse(w, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := auth.ExtractToken(r, s.config.Auth.CookieName); token != "" {
		if err := s.auth.Logout(r.Context(), token); err != nil && !errors.Is(err, auth.ErrUnauthorized) {
			s.serviceError(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.Auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	s.jsonResponse(w, map[string]bool{"success": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	t, err := s.deps.Tenants.GetByID(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, t)
}

// ---- Dashboard and analytics ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days, ok := s.days(w, r)
	if !ok {
		return
	}
	d, err := s.deps.Reporting.Dashboard(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		r.URL.Query().Get("subAccountId"),
		days,
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, d)
}

func (s *Server) handleDailySeries(w http.ResponseWriter, r *http.Request) {
	days, ok := s.days(w, r)
	if !ok {
		return
	}
	series, err := s.deps.Reporting.DailySeries(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		r.URL.Query().Get("subAccountId"),
		days,
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, series)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", portal.DefaultLeaderboardSize)
	if !ok {
		s.errorResponse(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	board, err := s.deps.Reporting.Leaderboard(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		r.URL.Query().Get("subAccountId"),
		limit,
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, board)
}

// ---- Campaigns ----

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Campaigns.List(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		r.URL.Query().Get("subAccountId"),
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleToggleCampaign(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Campaigns.Toggle(r.Context(), middleware.TenantIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, res)
}

// ---- Sub-accounts ----

func (s *Server) handleListSubAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.deps.Reporting.ListSubAccounts(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		q.Get("status"),
		q.Get("search"),
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, list)
}

type createSubAccountRequest struct {
	CompanyName string `json:"companyName"`
}

func (s *Server) handleCreateSubAccount(w http.ResponseWriter, r *http.Request) {
	var req createSubAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.deps.SubAccounts.Create(r.Context(), middleware.TenantIDFromContext(r.Context()), req.CompanyName)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonStatus(w, http.StatusCreated, sub)
}

func (s *Server) handleSubAccountDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Reporting.SubAccountDetail(r.Context(), middleware.TenantIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, d)
}

type providerKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (s *Server) handleSetProviderKey(w http.ResponseWriter, r *http.Request) {
	var req providerKeyRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.deps.SubAccounts.SetProviderKey(r.Context(),
		middleware.TenantIDFromContext(r.Context()),
		r.PathValue("id"),
		req.APIKey,
	)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]any{"id": sub.ID, "live": sub.IsLive()})
}

// ---- Reports ----

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Reports.List(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	var in portal.GenerateReportInput
	if !s.decode(w, r, &in) {
		return
	}
	rep, err := s.deps.Reports.Generate(r.Context(), middleware.TenantIDFromContext(r.Context()), in)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonStatus(w, http.StatusAccepted, rep)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.deps.Reports.Get(r.Context(), middleware.TenantIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, rep)
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	dl, err := s.deps.Reports.Download(r.Context(), middleware.TenantIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+dl.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Body)))
	w.WriteHeader(http.StatusOK)
	w.Write(dl.Body)
}

func (s *Server) handleScheduleReport(w http.ResponseWriter, r *http.Request) {
	var in portal.ScheduleReportInput
	if !s.decode(w, r, &in) {
		return
	}
	sched, err := s.deps.Reports.Schedule(r.Context(), middleware.TenantIDFromContext(r.Context()), in)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonStatus(w, http.StatusCreated, sched)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Reports.ListSchedules(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, list)
}

// ---- Settings ----

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Settings.Get(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var u portal.SettingsUpdate
	if !s.decode(w, r, &u) {
		return
	}
	st, err := s.deps.Settings.Put(r.Context(), middleware.TenantIDFromContext(r.Context()), u)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, st)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var p portal.SettingsPatch
	if !s.decode(w, r, &p) {
		return
	}
	st, err := s.deps.Settings.Patch(r.Context(), middleware.TenantIDFromContext(r.Context()), p)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, st)
}

func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	var in portal.InviteInput
	if !s.decode(w, r, &in) {
		return
	}
	m, err := s.deps.Settings.InviteMember(r.Context(), middleware.TenantIDFromContext(r.Context()), in)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonStatus(w, http.StatusCreated, m)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Settings.RemoveMember(r.Context(), middleware.TenantIDFromContext(r.Context()), r.PathValue("userId")); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]bool{"success": true})
}

func (s *Server) handleRegenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.deps.Settings.RegenerateAPIKey(r.Context(), middleware.TenantIDFromContext(r.Context()))
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]string{"apiKey": key})
}

type webhookRequest struct {
	WebhookURL *string `json:"webhookUrl"`
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.deps.Settings.SetWebhook(r.Context(), middleware.TenantIDFromContext(r.Context()), req.WebhookURL); err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, map[string]any{"success": true, "webhookUrl": req.WebhookURL})
}
