package chatenrich

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/internal/kit"
	"github.com/hazyhaar/chatenrich/processor"
	"github.com/hazyhaar/chatenrich/settings"
)

// Requests shared by the control API and the MCP tools.

type queryReq struct {
	Query string `json:"query"`
}

type panelReq struct {
	Session string `json:"session"`
	Panel   string `json:"panel,omitempty"` // empty targets the current panel
}

type panelsReq struct {
	Session string `json:"session,omitempty"` // empty lists every session
}

var errEmptyQuery = errors.New("chatenrich: query is required")

type earlyResp struct {
	Accepted bool `json:"accepted"`
}

type sessionPanels struct {
	SessionInfo
	Items []processor.PanelRecord `json:"items"`
}

func (a *Agent) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Logging(a.logger, name)(ep)
}

func (a *Agent) enrichEndpoint(ctx context.Context, req any) (any, error) {
	q := strings.TrimSpace(req.(*queryReq).Query)
	if q == "" {
		return nil, errEmptyQuery
	}
	res, err := a.Enrich(ctx, q)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Agent) earlyEndpoint(ctx context.Context, req any) (any, error) {
	q := strings.TrimSpace(req.(*queryReq).Query)
	if q == "" {
		return nil, errEmptyQuery
	}
	return earlyResp{Accepted: a.Early(ctx, q)}, nil
}

// settingsEndpoint returns the settings after applying the patch, which
// may be empty.
func (a *Agent) settingsEndpoint(ctx context.Context, req any) (any, error) {
	p := req.(*settings.Patch)
	if p.Empty() {
		return a.Settings(), nil
	}
	return a.UpdateSettings(ctx, *p)
}

func (a *Agent) panelsEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*panelsReq)
	var sessions []*Session
	if r.Session == "" {
		sessions = a.Sessions()
	} else {
		s, err := a.Session(r.Session)
		if err != nil {
			return nil, err
		}
		sessions = []*Session{s}
	}
	out := make([]sessionPanels, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionPanels{SessionInfo: s.Info(), Items: s.Panels()})
	}
	return out, nil
}

func (a *Agent) retryEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*panelReq)
	s, err := a.Session(r.Session)
	if err != nil {
		return nil, err
	}
	if r.Panel == "" {
		err = s.RetryCurrent(ctx)
	} else {
		err = s.Retry(ctx, r.Panel)
	}
	if err != nil {
		return nil, err
	}
	return s.Panels(), nil
}

func (a *Agent) dismissEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*panelReq)
	s, err := a.Session(r.Session)
	if err != nil {
		return nil, err
	}
	if r.Panel == "" {
		err = s.DismissCurrent(ctx)
	} else {
		err = s.Dismiss(ctx, r.Panel)
	}
	if err != nil {
		return nil, err
	}
	return s.Panels(), nil
}

// healthResp adds the agent's own view to the service health.
type healthResp struct {
	Service  *enrichment.Health `json:"service,omitempty"`
	Error    string             `json:"error,omitempty"`
	Sessions int                `json:"sessions"`
	Cached   int                `json:"cached"`
}

func (a *Agent) healthEndpoint(ctx context.Context, _ any) (any, error) {
	resp := healthResp{Sessions: len(a.Sessions()), Cached: a.cache.Len()}
	h, err := a.Health(ctx)
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Service = h
	}
	return resp, nil
}
