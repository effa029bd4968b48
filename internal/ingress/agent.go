package ingress

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/tjfontaine/fingerprint-edge-proxy/internal/server"
	"github.com/tjfontaine/fingerprint-edge-proxy/internal/upstream"
)

// Agent download query parameters.
const (
	paramAPIKey        = "apiKey"
	paramVersion       = "version"
	paramLoaderVersion = "loaderVersion"

	defaultAgentVersion = "3"
)

var errMissingAPIKey = errors.New("API key is missing")

// handleAgentDownload serves the agent loader from the CDN backend.
func (h *Handler) handleAgentDownload(r *http.Request) *http.Response {
	ctx := r.Context()

	if h.cdn.URL == nil {
		return fallbackErrorResponse(r, "agent download is not configured")
	}

	cdnPath, query, err := agentPath(r.URL.Query())
	if err != nil {
		server.AddError(ctx, err)
		return fallbackErrorResponse(r, err.Error())
	}

	out := r.Clone(ctx)
	out.URL.Path = cdnPath
	out.URL.RawPath = ""
	out.URL.RawQuery = h.withTrafficParam(query, "procdn").Encode()
	out.Header.Del("Cookie")

	resp, err := h.fetcher.Fetch(ctx, h.cdn, out, upstream.Options{
		Cache: upstream.CachePass,
		Route: RouteAgent,
	})
	if err != nil {
		server.AddError(ctx, err)
		return fallbackErrorResponse(r, err.Error())
	}
	return resp
}

// agentPath maps the download query to the CDN layout
// /v<version>/<apiKey>[/loader_v<loaderVersion>.js] and returns the query
// parameters left to forward.
func agentPath(q url.Values) (string, url.Values, error) {
	apiKey := strings.TrimSpace(q.Get(paramAPIKey))
	if apiKey == "" {
		return "", nil, errMissingAPIKey
	}
	version := strings.TrimSpace(q.Get(paramVersion))
	if version == "" {
		version = defaultAgentVersion
	}

	segments := []string{"/", "v" + version, apiKey}
	if lv := strings.TrimSpace(q.Get(paramLoaderVersion)); lv != "" {
		segments = append(segments, "loader_v"+lv+".js")
	}

	rest := url.Values{}
	for k, v := range q {
		switch k {
		case paramAPIKey, paramVersion, paramLoaderVersion:
		default:
			rest[k] = v
		}
	}
	return path.Join(segments...), rest, nil
}
