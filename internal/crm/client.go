// Package crm provides the HTTP client for the dealership CRM lead API.
package crm

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"dealership_portal/internal/crm/transport"
	"dealership_portal/internal/pipeline/domain"
	"dealership_portal/internal/pipeline/ports"
	"dealership_portal/platform/apperr"
	"dealership_portal/platform/config"
	"dealership_portal/platform/logger"
	"dealership_portal/platform/phone"
	"dealership_portal/platform/sanitize"

	"golang.org/x/time/rate"
)

const (
	leadsPath  = "/api/leads"
	stagesPath = "/api/pipeline/stages"

	maxErrorBody = 64 << 10
)

// Client talks to the CRM over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	region     string
	log        *logger.Logger
}

var _ ports.LeadAPI = (*Client)(nil)

// New creates a CRM client.
func New(cfg config.CRMConfig, log *logger.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.GetCRMBaseURL()), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid CRM base url %q", cfg.GetCRMBaseURL())
	}

	timeout := cfg.GetCRMTimeout()
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	limit := rate.Inf
	burst := 1
	if rps := cfg.GetCRMRequestsPerSecond(); rps > 0 {
		limit = rate.Limit(rps)
		burst = max(1, int(rps))
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		token:      cfg.GetCRMAPIToken(),
		limiter:    rate.NewLimiter(limit, burst),
		region:     phone.DefaultRegion,
		log:        log,
	}, nil
}

// ListLeads fetches one page of the lead listing.
func (c *Client) ListLeads(ctx context.Context, q domain.ListLeadsQuery) (domain.LeadPage, error) {
	var page transport.LeadPage
	if err := c.do(ctx, http.MethodGet, leadsPath+"?"+encodeQuery(q).Encode(), nil, http.StatusOK, &page); err != nil {
		return domain.LeadPage{}, err
	}

	items := make([]domain.Lead, 0, len(page.Items))
	for _, l := range page.Items {
		items = append(items, c.toLead(l))
	}
	return domain.LeadPage{Items: items, Page: page.Page, Pages: page.Pages, Total: page.Total}, nil
}

// ListStages fetches the ordered pipeline stages.
func (c *Client) ListStages(ctx context.Context) ([]domain.Stage, error) {
	var list transport.StageList
	if err := c.do(ctx, http.MethodGet, stagesPath, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}

	slices.SortStableFunc(list.Stages, func(a, b transport.Stage) int { return cmp.Compare(a.Position, b.Position) })
	out := make([]domain.Stage, 0, len(list.Stages))
	for _, s := range list.Stages {
		out = append(out, domain.Stage{ID: s.ID, Name: s.Name, DisplayName: sanitize.Text(s.DisplayName), Color: s.Color})
	}
	return out, nil
}

// Ping checks that the CRM answers authenticated requests.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListStages(ctx)
	return err
}

// UpdateLeadStage requests a stage transition. A 200 answer is either the
// updated lead or a skate warning; a 409 with the blocked code is a refusal.
func (c *Client) UpdateLeadStage(ctx context.Context, req domain.StageTransition) (domain.TransitionResult, error) {
	body := transport.UpdateStageRequest{StageID: req.TargetStageID, Note: req.Note, Override: req.Override}
	path := leadsPath + "/" + url.PathEscape(req.LeadID) + "/stage"

	var raw json.RawMessage
	err := c.do(ctx, http.MethodPatch, path, body, http.StatusOK, &raw)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) && appErr.Kind == apperr.KindBlocked {
			return domain.Blocked{Reason: appErr.Message}, nil
		}
		return nil, err
	}
	return c.decodeTransition(raw)
}

func (c *Client) decodeTransition(raw json.RawMessage) (domain.TransitionResult, error) {
	var probe struct {
		SkateWarning bool `json:"skate_warning"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode transition response: %w", err)
	}

	if probe.SkateWarning {
		var w transport.SkateWarning
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("decode skate warning: %w", err)
		}
		return domain.Conflict{Warning: domain.SkateWarning{
			LeadName:       sanitize.Text(w.LeadName),
			AssignedToID:   w.AssignedToID,
			AssignedToName: sanitize.Text(w.AssignedToName),
			Action:         w.Action,
			Message:        sanitize.Text(w.Message),
			NotifyHint:     w.NotifyHint,
		}}, nil
	}

	var lead transport.Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return nil, fmt.Errorf("decode lead: %w", err)
	}
	if lead.ID == "" {
		return nil, errors.New("decode lead: missing id")
	}
	return domain.Committed{Lead: c.toLead(lead)}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("crm request failed", "method", method, "path", path, "error", err)
		return apperr.Wrap(apperr.KindUnavailable, "CRM unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.statusError(method, path, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Error("crm decode failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) statusError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var er transport.ErrorResponse
	_ = json.Unmarshal(raw, &er)
	msg := cmp.Or(er.Message, er.Error, http.StatusText(resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusConflict:
		if er.Code == transport.CodeSkateBlocked {
			return apperr.Blocked(msg)
		}
		return apperr.Conflict(msg)
	case http.StatusNotFound:
		return apperr.NotFound(msg)
	case http.StatusUnauthorized:
		c.log.Error("crm unauthorized", "status", resp.StatusCode)
		return apperr.Unauthorized(msg)
	case http.StatusForbidden:
		return apperr.Forbidden(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperr.BadRequest(msg)
	case http.StatusTooManyRequests:
		return apperr.TooManyRequests(msg)
	default:
		c.log.Error("crm upstream error", "method", method, "path", path, "status", resp.StatusCode)
		return apperr.Unavailable(fmt.Sprintf("CRM error: status %d", resp.StatusCode))
	}
}

func (c *Client) toLead(l transport.Lead) domain.Lead {
	name := sanitize.Text(l.FirstName + " " + l.LastName)
	return domain.Lead{
		ID:             l.ID,
		StageID:        l.StageID,
		AssignedTo:     l.AssignedTo,
		AssignedToName: sanitize.Text(l.AssignedToName),
		Source:         l.Source,
		CreatedAt:      l.CreatedAt,
		Name:           name,
		Email:          strings.TrimSpace(l.Email),
		Phone:          phone.NormalizeE164(l.Phone, c.region),
		Vehicle:        sanitize.Text(l.VehicleInterest),
		IsActive:       l.IsActive,
	}
}

func encodeQuery(q domain.ListLeadsQuery) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(max(q.Page, 1)))
	if q.PageSize > 0 {
		params.Set("page_size", strconv.Itoa(q.PageSize))
	}
	setIf := func(key, value string) {
		if value != "" {
			params.Set(key, value)
		}
	}
	setIf("search", q.Search)
	setIf("source", q.Source)
	setIf("assigned_to", q.AssignedTo)
	setIf("pool", q.Pool)
	setIf("stage_id", q.StageID)
	setIf("stage", q.Stage)
	if q.FreshOnly {
		params.Set("fresh_only", "true")
	}
	if q.IsActive != nil {
		params.Set("is_active", strconv.FormatBool(*q.IsActive))
	}
	return params
}
