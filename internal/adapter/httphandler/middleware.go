package httphandler

import (
	"crypto/subtle"
	"mime"
	"net/http"
	"slices"
	"strings"
)

const AdminKeyHeader = "X-Admin-Key"

type Middleware func(http.Handler) http.Handler

func AllowJSON(next http.Handler) http.Handler {
	hf := func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			writeJSON(w, http.StatusUnsupportedMediaType,
				ErrorResponse{Error: "Invalid media type"})
			return
		}

		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(hf)
}

// CORS answers preflight requests and rejects foreign origins.
//
// An allowed origin of "*" or "" accepts every origin.
func CORS(allowedOrigin string, methods, headers []string) Middleware {
	allowedOrigin = strings.TrimSpace(allowedOrigin)
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		hf := func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)

			origin := r.Header.Get("Origin")
			if allowedOrigin != "*" && origin != "" && origin != allowedOrigin {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "Forbidden origin"})
				return
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hf)
	}
}

// AdminKey requires the configured key in the X-Admin-Key header.
func AdminKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		hf := func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error: "Server not configured", Detail: "admin key is not set",
				})
				return
			}
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hf)
	}
}

// byMethod dispatches on the request method and answers 405 otherwise.
type byMethod map[string]http.Handler

func (m byMethod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h, ok := m[r.Method]; ok {
		h.ServeHTTP(w, r)
		return
	}

	allowed := make([]string, 0, len(m))
	for method := range m {
		allowed = append(allowed, method)
	}
	slices.Sort(allowed)

	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error: "Use " + strings.Join(allowed, " or "),
	})
}

func chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
