package webui

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/alex65536/syllabus/internal/util/httputil"
	"github.com/alex65536/syllabus/internal/util/slogx"
)

func writeHTTPErr(log *slog.Logger, w http.ResponseWriter, err error) {
	if err = httputil.WriteErrorResponse(err, w); err != nil {
		log.Info("error writing error response", slogx.Err(err))
	}
}

// formAction extracts the name of a named form action. Actions are addressed with
// a query key starting with a slash, as in "POST /account?/signout". The key may be
// percent-encoded.
func formAction(req *http.Request) (string, bool) {
	for _, part := range strings.Split(req.URL.RawQuery, "&") {
		rawKey, _, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		if name, ok := strings.CutPrefix(key, "/"); ok && name != "" {
			return name, true
		}
	}
	return "", false
}
