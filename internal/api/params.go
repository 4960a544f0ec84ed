package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, jobmonerrors.InvalidUsage("invalid " + name + ": " + raw)
	}
	return id, nil
}
