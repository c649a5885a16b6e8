package handlers

import (
	"net/http"
	"strconv"

	"github.com/justbri/marquee/services"
)

type pageParams struct {
	Page     string `json:"page" validate:"omitempty,number"`
	PageSize string `json:"pageSize" validate:"omitempty,number"`
	Light    string `json:"light" validate:"omitempty,oneof=true false 1 0"`
}

// pageQuery parses the paging query string. Every malformed parameter is
// reported, not only the first one.
func (h *Handler) pageQuery(r *http.Request) (services.PageQuery, error) {
	q := r.URL.Query()
	p := pageParams{
		Page:     q.Get("page"),
		PageSize: q.Get("pageSize"),
		Light:    q.Get("light"),
	}
	if err := h.check(&p, "query"); err != nil {
		return services.PageQuery{}, err
	}

	errs := &services.ValidationError{}
	page := atoi(p.Page, "page", errs)
	pageSize := atoi(p.PageSize, "pageSize", errs)
	if err := errs.OrNil(); err != nil {
		return services.PageQuery{}, err
	}

	return services.PageQuery{
		Page:     page,
		PageSize: pageSize,
		Light:    p.Light == "true" || p.Light == "1",
		Path:     r.URL.Path,
	}, nil
}

// atoi converts an already validated digit string, flagging overflow.
func atoi(s, param string, errs *services.ValidationError) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		errs.Add("query", param, s, "Must be a non-negative integer")
	}
	return n
}

type ratedParams struct {
	Page string `json:"page" validate:"omitempty,number"`
}

func (h *Handler) ratedPage(r *http.Request) (int, error) {
	p := ratedParams{Page: r.URL.Query().Get("page")}
	if err := h.check(&p, "query"); err != nil {
		return 0, err
	}
	errs := &services.ValidationError{}
	page := atoi(p.Page, "page", errs)
	return page, errs.OrNil()
}
