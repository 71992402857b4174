package admin

import (
	"net/http"
	"strconv"

	"github.com/virtserve/virtserve/pkg/httputil"
	"github.com/virtserve/virtserve/pkg/requestlog"
)

func (a *API) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		httputil.WriteOK(w, []*requestlog.Entry{})
		return
	}

	q := r.URL.Query()
	filter := &requestlog.Filter{
		Method:     q.Get("method"),
		Path:       q.Get("path"),
		EndpointID: q.Get("endpointId"),
		Outcome:    requestlog.Outcome(q.Get("outcome")),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.WriteBadRequest(w, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			httputil.WriteBadRequest(w, "invalid_offset", "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	httputil.WriteOK(w, a.journal.List(filter))
}

func (a *API) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		httputil.WriteNotFound(w, "not_found", "request log entry not found")
		return
	}
	entry := a.journal.Get(r.PathValue("id"))
	if entry == nil {
		httputil.WriteNotFound(w, "not_found", "request log entry not found")
		return
	}
	httputil.WriteOK(w, entry)
}

func (a *API) handleClearRequests(w http.ResponseWriter, _ *http.Request) {
	if a.journal != nil {
		a.journal.Clear()
	}
	httputil.WriteNoContent(w)
}
