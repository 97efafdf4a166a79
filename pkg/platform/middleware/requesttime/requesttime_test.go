package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pawnval/pkg/requestcontext"
)

func TestWithClockPinsRequestTime(t *testing.T) {
	fixed := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	var seen []time.Time
	h := WithClock(func() time.Time { return fixed })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestcontext.Now(r.Context()), requestcontext.Now(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []time.Time{fixed, fixed}, seen)
}
