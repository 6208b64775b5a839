package envelope

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, r Result) map[string]any {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload
}

func TestSuccessBranchNeverCarriesError(t *testing.T) {
	cases := map[string]Result{
		"ok":      OK(map[string]any{"id": "1"}),
		"message": Message("Journal entry deleted successfully"),
		"list":    List([]string{"a", "b"}),
		"empty":   List[string](nil),
		"created": OK("x").WithStatus(http.StatusCreated).WithMessage("created"),
	}
	for name, result := range cases {
		t.Run(name, func(t *testing.T) {
			payload := decode(t, result)
			assert.Equal(t, true, payload["success"])
			assert.NotContains(t, payload, "error")
			assert.NotContains(t, payload, "details")
			assert.NotEmpty(t, payload["timestamp"])
		})
	}
}

func TestFailureBranchNeverCarriesData(t *testing.T) {
	kinds := []Kind{
		KindValidation, KindUnauthorized, KindNotFound, KindMethodNotAllowed,
		KindInvalidProvider, KindUpstream, KindInternal, KindTimeout,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			payload := decode(t, Fail(kind, "", "boom").WithMessage("ignored"))
			assert.Equal(t, false, payload["success"])
			assert.NotEmpty(t, payload["error"])
			assert.NotContains(t, payload, "data")
			assert.NotContains(t, payload, "message")
			assert.NotContains(t, payload, "count")
			assert.NotEmpty(t, payload["timestamp"])
		})
	}
}

func TestListCountMatchesLength(t *testing.T) {
	payload := decode(t, List([]int{1, 2, 3}))
	assert.EqualValues(t, 3, payload["count"])
	assert.Len(t, payload["data"], 3)

	payload = decode(t, List[int](nil))
	assert.EqualValues(t, 0, payload["count"])
	assert.Equal(t, []any{}, payload["data"])
}

func TestKindStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindValidation.Status())
	assert.Equal(t, http.StatusBadRequest, KindInvalidProvider.Status())
	assert.Equal(t, http.StatusNotFound, KindNotFound.Status())
	assert.Equal(t, http.StatusInternalServerError, KindUpstream.Status())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.Status())
	assert.Equal(t, http.StatusGatewayTimeout, KindTimeout.Status())
	assert.Equal(t, http.StatusInternalServerError, Kind("whatever").Status())
}

func TestTimestampIsRFC3339(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	payload := decode(t, Fail(KindNotFound, "Journal entry not found", ""))
	assert.Equal(t, "2024-03-01T12:00:00Z", payload["timestamp"])
}

func TestWrite(t *testing.T) {
	rr := httptest.NewRecorder()
	Write(rr, Fail(KindValidation, "title and content are required", ""))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "title and content are required", payload["error"])
	assert.Equal(t, string(KindValidation), payload["kind"])
}
