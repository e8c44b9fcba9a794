package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cwbudde/go-onnxref/internal/engine"
	"github.com/cwbudde/go-onnxref/internal/server"
)

func newTestHandler(opts ...server.Option) http.Handler {
	return server.NewHandler(engine.New(), opts...)
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)

	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) server.EvaluateResponse {
	t.Helper()

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var resp server.EvaluateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}

	if body["error"] == "" {
		t.Error("want non-empty error field")
	}

	return body
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}
}

// ---------------------------------------------------------------------------
// GET /v1/operators
// ---------------------------------------------------------------------------

func TestOperators_ListsRegistry(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/operators", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var got []engine.OperatorInfo
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode body: %v", err)
	}

	if len(got) != len(engine.Operators()) {
		t.Fatalf("want %d operators, got %d", len(engine.Operators()), len(got))
	}

	found := false

	for _, op := range got {
		if op.Name == "Einsum" && len(op.Versions) > 0 {
			found = true
		}
	}

	if !found {
		t.Error("want Einsum in operator list")
	}
}

func TestOperators_RejectsPost(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/operators", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /v1/evaluate
// ---------------------------------------------------------------------------

func TestEvaluate_AddBroadcasts(t *testing.T) {
	h := newTestHandler()

	rec := post(h, `{
		"op": "Add",
		"inputs": [
			{"dtype": "float32", "shape": [2, 2], "data": [1, 2, 3, 4]},
			{"dtype": "float32", "shape": [2], "data": [10, 20]}
		]
	}`)

	resp := decodeResponse(t, rec)

	want, err := engine.Lookup("Add", 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if resp.Op != "Add" || resp.Since != want.Since {
		t.Errorf("want Add-%d, got %s-%d", want.Since, resp.Op, resp.Since)
	}

	if len(resp.Outputs) != 1 {
		t.Fatalf("want 1 output, got %d", len(resp.Outputs))
	}

	out := resp.Outputs[0]
	if out.DType != "float32" {
		t.Errorf("dtype = %q; want float32", out.DType)
	}

	wantData := []float64{11, 22, 13, 24}
	for i, v := range out.Data {
		if v.(float64) != wantData[i] {
			t.Errorf("data[%d] = %v; want %v", i, v, wantData[i])
		}
	}
}

func TestEvaluate_AttributesAreCoerced(t *testing.T) {
	h := newTestHandler()

	rec := post(h, `{
		"op": "Transpose",
		"inputs": [{"dtype": "int64", "shape": [2, 3], "data": [1, 2, 3, 4, 5, 6]}],
		"attributes": {"perm": [1, 0]}
	}`)

	out := decodeResponse(t, rec).Outputs[0]

	if len(out.Shape) != 2 || out.Shape[0] != 3 || out.Shape[1] != 2 {
		t.Fatalf("shape = %v; want [3 2]", out.Shape)
	}

	wantData := []float64{1, 4, 2, 5, 3, 6}
	for i, v := range out.Data {
		if v.(float64) != wantData[i] {
			t.Errorf("data[%d] = %v; want %v", i, v, wantData[i])
		}
	}
}

func TestEvaluate_EinsumStringAttribute(t *testing.T) {
	h := newTestHandler()

	rec := post(h, `{
		"op": "Einsum",
		"inputs": [
			{"dtype": "float64", "shape": [3], "data": [1, 2, 3]},
			{"dtype": "float64", "shape": [3], "data": [4, 5, 6]}
		],
		"attributes": {"equation": "i,i->"}
	}`)

	out := decodeResponse(t, rec).Outputs[0]
	if len(out.Shape) != 0 || len(out.Data) != 1 || out.Data[0].(float64) != 32 {
		t.Fatalf("got shape %v data %v; want scalar 32", out.Shape, out.Data)
	}
}

func TestEvaluate_NonFiniteValuesRoundTrip(t *testing.T) {
	h := newTestHandler()

	rec := post(h, `{
		"op": "Neg",
		"inputs": [{"dtype": "float32", "shape": [3], "data": ["NaN", "Infinity", 1.5]}]
	}`)

	out := decodeResponse(t, rec).Outputs[0]

	want := []any{"NaN", "-Infinity", -1.5}
	for i := range want {
		if out.Data[i] != want[i] {
			t.Errorf("data[%d] = %v; want %v", i, out.Data[i], want[i])
		}
	}
}

func TestEvaluate_SequenceIdentity(t *testing.T) {
	h := newTestHandler()

	rec := post(h, `{
		"op": "Identity",
		"inputs": [{
			"kind": "sequence",
			"dtype": "int32",
			"elements": [
				{"dtype": "int32", "shape": [2], "data": [1, 2]},
				{"dtype": "int32", "shape": [1], "data": [3]}
			]
		}]
	}`)

	out := decodeResponse(t, rec).Outputs[0]
	if out.Kind != "sequence" || len(out.Elements) != 2 {
		t.Fatalf("want a 2-element sequence, got %+v", out)
	}
}

func TestEvaluate_SeedIsReproducible(t *testing.T) {
	h := newTestHandler()

	body := `{
		"op": "Bernoulli",
		"seed": 42,
		"inputs": [{"dtype": "float64", "shape": [16], "data": [0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5,0.5]}]
	}`

	a := decodeResponse(t, post(h, body)).Outputs[0]
	b := decodeResponse(t, post(h, body)).Outputs[0]

	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("seeded draws differ at %d: %v vs %v", i, a.Data[i], b.Data[i])
		}

		if v := a.Data[i].(float64); v != 0 && v != 1 {
			t.Fatalf("draw %d = %v; want 0 or 1", i, v)
		}
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{
			name:   "unknown operator",
			body:   `{"op": "Frobnicate", "inputs": []}`,
			status: http.StatusNotFound,
			kind:   "UnknownOperator",
		},
		{
			name:   "arity",
			body:   `{"op": "Abs", "inputs": []}`,
			status: http.StatusUnprocessableEntity,
			kind:   "ArityMismatch",
		},
		{
			name:   "unknown attribute",
			body:   `{"op": "Abs", "inputs": [{"dtype": "float32", "shape": [1], "data": [1]}], "attributes": {"alpha": 1}}`,
			status: http.StatusUnprocessableEntity,
			kind:   "AttributeError",
		},
		{
			name:   "broadcast",
			body:   `{"op": "Add", "inputs": [{"dtype": "float32", "shape": [2], "data": [1, 2]}, {"dtype": "float32", "shape": [3], "data": [1, 2, 3]}]}`,
			status: http.StatusUnprocessableEntity,
			kind:   "BroadcastError",
		},
		{
			name:   "data length",
			body:   `{"op": "Abs", "inputs": [{"dtype": "float32", "shape": [2], "data": [1]}]}`,
			status: http.StatusBadRequest,
			kind:   "InvalidValue",
		},
		{
			name:   "unknown dtype",
			body:   `{"op": "Abs", "inputs": [{"dtype": "complex64", "shape": [1], "data": [1]}]}`,
			status: http.StatusUnprocessableEntity,
			kind:   "UnsupportedDtype",
		},
	}

	h := newTestHandler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(h, tt.body)

			if rec.Code != tt.status {
				t.Fatalf("want %d, got %d (body: %s)", tt.status, rec.Code, rec.Body.String())
			}

			body := decodeError(t, rec)
			if body["kind"] != tt.kind {
				t.Errorf("kind = %q; want %q", body["kind"], tt.kind)
			}
		})
	}
}

func TestEvaluate_MissingBodyAs400(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}

	decodeError(t, rec)
}

func TestEvaluate_InvalidJSONAs400(t *testing.T) {
	rec := post(newTestHandler(), `{"op": `)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}

	decodeError(t, rec)
}

func TestEvaluate_MissingOpAs400(t *testing.T) {
	rec := post(newTestHandler(), `{"inputs": []}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestEvaluate_RejectsGet(t *testing.T) {
	h := newTestHandler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/evaluate", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}
}

func TestValueRoundTrip(t *testing.T) {
	in := &server.Value{DType: "float64", Shape: []int64{2}, Data: []any{json.Number("1.5"), "-Infinity"}}

	v, err := in.Decode()
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	out, err := server.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}

	if out.Data[0] != 1.5 || out.Data[1] != "-Infinity" {
		t.Errorf("data = %v", out.Data)
	}
}
