package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/events"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/report"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/testutil"
)

const testDocument = "Patient reports chest tightness and shortness of breath during exams."

func echoTask(prefix string) core.Task {
	return core.TaskFunc(func(_ context.Context, input string) (string, error) {
		return prefix + ": reviewed " + input[:7], nil
	})
}

func newTestOrchestrator(synthesis core.Task, options ...diagnosis.Option) *diagnosis.Orchestrator {
	specialists := []core.Specialist{
		{ID: "Cardiologist", Task: echoTask("cardio")},
		{ID: "Psychologist", Task: echoTask("psych")},
		{ID: "Pulmonologist", Task: echoTask("pulmo")},
	}
	if synthesis == nil {
		synthesis = core.TaskFunc(func(_ context.Context, _ string) (string, error) {
			return "Panic attack without cardiac involvement.", nil
		})
	}
	n := 0
	options = append([]diagnosis.Option{diagnosis.WithIDGenerator(func() core.RunID {
		n++
		return core.RunID("run-" + string(rune('0'+n)))
	})}, options...)
	return diagnosis.NewOrchestrator(specialists, "MultidisciplinaryTeam", synthesis, diagnosis.DefaultOptions(), options...)
}

func doRequest(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))
	rec := doRequest(t, s.Handler(), http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "healthy", body["status"])
}

func TestCreateDiagnosis_JSON(t *testing.T) {
	store := testutil.NewMockRunStore()
	dir := t.TempDir()
	writer := report.NewWriter(report.Config{Dir: dir, Enabled: true})
	s := NewServer(newTestOrchestrator(nil, diagnosis.WithRunStore(store)), WithRunStore(store), WithReportWriter(writer))

	payload, _ := json.Marshal(CreateDiagnosisRequest{Document: testDocument, Source: "../intake/patient 1.txt"})
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses", "application/json", string(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DiagnosisResponse](t, rec)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, core.RunStateDone, resp.State)
	assert.Equal(t, "Panic attack without cardiac involvement.", resp.Report)
	assert.False(t, resp.Degraded)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, core.TaskID("Cardiologist"), resp.Outcomes[0].TaskID)
	assert.Equal(t, "cardio: reviewed Patient", resp.Outcomes[0].Text)
	assert.Nil(t, resp.Error)

	require.NotNil(t, resp.ReportFiles)
	data, err := os.ReadFile(resp.ReportFiles.Run)
	require.NoError(t, err)
	assert.Equal(t, "### Final Diagnosis:\n\nPanic attack without cardiac involvement.\n", string(data))

	rec2, err := store.Load(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, rec2)
	assert.Equal(t, "intake_patient_1.txt", rec2.Source)
}

func TestCreateDiagnosis_PlainText(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses?source=note.md", "text/plain; charset=utf-8", testDocument)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DiagnosisResponse](t, rec)
	assert.Equal(t, core.RunStateDone, resp.State)
	assert.Nil(t, resp.ReportFiles)
}

func TestCreateDiagnosis_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{"empty json document", "application/json", `{"document":"   "}`, http.StatusUnprocessableEntity, core.CodeEmptyDocument},
		{"empty text", "text/plain", "\n\t ", http.StatusUnprocessableEntity, core.CodeEmptyDocument},
		{"too large text", "text/plain", strings.Repeat("x", 65), http.StatusUnprocessableEntity, core.CodeDocumentTooLarge},
		{"too large json", "application/json", `{"document":"` + strings.Repeat("x", 65) + `"}`, http.StatusUnprocessableEntity, core.CodeDocumentTooLarge},
		{"invalid json", "application/json", `{"document":`, http.StatusBadRequest, core.CodeInvalidRequest},
		{"json body over limit", "application/json", `{"document":"` + strings.Repeat(`\u0000`, 900) + `"}`, http.StatusUnprocessableEntity, core.CodeDocumentTooLarge},
		{"unsupported type", "application/pdf", "%PDF-1.7", http.StatusUnprocessableEntity, core.CodeUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			synthesis := core.TaskFunc(func(_ context.Context, _ string) (string, error) {
				calls++
				return "report", nil
			})
			s := NewServer(newTestOrchestrator(synthesis), WithIntake(intake.Options{MaxBytes: 64}))

			rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses", tt.contentType, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
			assert.Zero(t, calls)
		})
	}
}

func uploadBody(t *testing.T, field, filename, content string) (string, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), buf.String()
}

func TestCreateDiagnosis_Upload(t *testing.T) {
	store := testutil.NewMockRunStore()
	s := NewServer(newTestOrchestrator(nil, diagnosis.WithRunStore(store)), WithRunStore(store))

	contentType, body := uploadBody(t, "report", "../Patient Report.txt", testDocument)
	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses", contentType, body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[DiagnosisResponse](t, rec)
	assert.Equal(t, core.RunStateDone, resp.State)
	require.Len(t, resp.Outcomes, 3)
	assert.Equal(t, "cardio: reviewed Patient", resp.Outcomes[0].Text)

	stored, err := store.Load(context.Background(), core.RunID(resp.RunID))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, intake.SanitizeFilename("../Patient Report.txt"), stored.Source)
}

func TestCreateDiagnosis_UploadRejections(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		filename   string
		content    string
		wantStatus int
		wantCode   string
	}{
		{"disallowed extension", "report", "scan.pdf", "%PDF-1.7", http.StatusUnprocessableEntity, core.CodeUnsupportedFormat},
		{"no extension", "report", "report", testDocument, http.StatusUnprocessableEntity, core.CodeUnsupportedFormat},
		{"missing report field", "file", "patient.txt", testDocument, http.StatusBadRequest, core.CodeInvalidRequest},
		{"empty upload", "report", "patient.md", "  \n", http.StatusUnprocessableEntity, core.CodeEmptyDocument},
		{"too large upload", "report", "patient.txt", strings.Repeat("x", 65), http.StatusUnprocessableEntity, core.CodeDocumentTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			synthesis := core.TaskFunc(func(_ context.Context, _ string) (string, error) {
				calls++
				return "report", nil
			})
			s := NewServer(newTestOrchestrator(synthesis), WithIntake(intake.Options{MaxBytes: 64}))

			contentType, body := uploadBody(t, tt.field, tt.filename, tt.content)
			rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses", contentType, body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[errorBody](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Zero(t, calls)
		})
	}
}

func TestCreateDiagnosis_SynthesisFailureReturnsPartialResult(t *testing.T) {
	dir := t.TempDir()
	writer := report.NewWriter(report.Config{Dir: dir, Enabled: true})
	synthesis := core.TaskFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("model overloaded")
	})
	s := NewServer(newTestOrchestrator(synthesis), WithReportWriter(writer))

	rec := doRequest(t, s.Handler(), http.MethodPost, "/api/v1/diagnoses", "text/plain", testDocument)

	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	resp := decode[DiagnosisResponse](t, rec)
	assert.Equal(t, core.RunStateFailedAtSynthesis, resp.State)
	assert.Empty(t, resp.Report)
	assert.Len(t, resp.Outcomes, 3)
	require.NotNil(t, resp.Synthesis)
	assert.Equal(t, core.OutcomeFailure, resp.Synthesis.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, core.CodeSynthesisFailed, resp.Error.Code)
	assert.Nil(t, resp.ReportFiles)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListAndGetDiagnoses(t *testing.T) {
	store := testutil.NewMockRunStore()
	ctx := context.Background()
	older := testutil.NewTestRecord(func(r *core.RunRecord) {
		r.ID = "run-old"
		r.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	})
	newer := testutil.NewTestRecord(func(r *core.RunRecord) {
		r.ID = "run-new"
		r.Outcomes[2] = core.Failure("Pulmonologist", core.CodeTimeout, "timed out")
	})
	require.NoError(t, store.Save(ctx, older))
	require.NoError(t, store.Save(ctx, newer))

	s := NewServer(newTestOrchestrator(nil), WithRunStore(store))

	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/diagnoses", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DiagnosisListResponse](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, core.RunID("run-new"), list.Runs[0].ID)
	assert.Equal(t, 1, list.Runs[0].Failed)

	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/diagnoses?limit=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[DiagnosisListResponse](t, rec).Count)

	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/diagnoses?limit=-3", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/diagnoses/run-old", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[core.RunRecord](t, rec)
	assert.Equal(t, core.RunID("run-old"), got.ID)
	assert.Equal(t, older.Report, got.Report)

	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/diagnoses/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Code)
}

func TestDiagnoses_NoStore(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))

	for _, path := range []string{"/api/v1/diagnoses", "/api/v1/diagnoses/run-1"} {
		rec := doRequest(t, s.Handler(), http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestListSpecialists(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/specialists", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SpecialistsResponse](t, rec)
	assert.Equal(t, []core.TaskID{"Cardiologist", "Psychologist", "Pulmonologist"}, resp.Specialists)
	assert.Equal(t, core.TaskID("MultidisciplinaryTeam"), resp.Synthesis)
}

func TestMetrics(t *testing.T) {
	rec := doRequest(t, NewServer(newTestOrchestrator(nil)).Handler(), http.MethodGet, "/api/v1/metrics", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	metrics := service.NewMetricsCollector()
	metrics.Observe(events.NewRunStartedEvent("run-1", []string{"Cardiologist"}, 10))
	metrics.Observe(events.NewTaskCompletedEvent("run-1", "Cardiologist", diagnosis.StageFanOut, true, "", time.Second))
	metrics.Observe(events.NewRunCompletedEvent("run-1", 2*time.Second, false))

	s := NewServer(newTestOrchestrator(nil), WithMetrics(metrics))
	rec = doRequest(t, s.Handler(), http.MethodGet, "/api/v1/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[service.Metrics](t, rec)
	assert.Equal(t, 1, got.Runs.Completed)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, "Cardiologist", got.Tasks[0].TaskID)
}

func TestCORS(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil), WithCORSOrigins([]string{"http://localhost:5173"}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPStatusForDomainError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrValidation(core.CodeInvalidConfig, "bad"), http.StatusBadRequest},
		{core.ErrInputPrecondition(core.CodeEmptyDocument, "empty"), http.StatusUnprocessableEntity},
		{core.ErrNotFound("run", "x"), http.StatusNotFound},
		{core.ErrState(core.CodeRunAlreadyStarted, "again"), http.StatusConflict},
		{core.ErrSynthesisFailed("MultidisciplinaryTeam", "boom"), http.StatusBadGateway},
		{core.ErrTimeout("slow"), http.StatusGatewayTimeout},
		{core.ErrRateLimit("busy"), http.StatusTooManyRequests},
		{core.ErrAuth("denied"), http.StatusUnauthorized},
		{core.ErrNetwork("down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, ok := httpStatusForDomainError(tt.err)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}

	_, ok := httpStatusForDomainError(errors.New("plain"))
	assert.False(t, ok)

	rec := httptest.NewRecorder()
	respondDomainError(rec, errors.New("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestSSE_StreamsRunEvents(t *testing.T) {
	bus := events.New(16)
	defer bus.Close()
	s := NewServer(newTestOrchestrator(nil), WithEventBus(bus))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?run=run-7", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, _ := readSSEEvent(t, reader)
	require.Equal(t, "connected", name)

	bus.Publish(events.NewFanOutCompletedEvent("other-run", 3, 0))
	bus.Publish(events.NewFanOutCompletedEvent("run-7", 2, 1))

	name, payload := readSSEEvent(t, reader)
	assert.Equal(t, events.TypeFanOutCompleted, name)
	assert.Equal(t, "run-7", payload["run_id"])
	assert.EqualValues(t, 2, payload["succeeded"])
	assert.EqualValues(t, 1, payload["failed"])
}

func TestSSE_NoBus(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))
	rec := doRequest(t, s.Handler(), http.MethodGet, "/api/v1/events", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// mockFlusher wraps httptest.ResponseRecorder to satisfy http.Flusher.
type mockFlusher struct{}

func (mockFlusher) Flush() {}

func TestSendEventToClient_Payloads(t *testing.T) {
	s := NewServer(newTestOrchestrator(nil))

	tests := []struct {
		event events.Event
		check func(t *testing.T, p map[string]interface{})
	}{
		{
			events.NewRunStartedEvent("r", []string{"Cardiologist"}, 42),
			func(t *testing.T, p map[string]interface{}) {
				assert.EqualValues(t, 42, p["document_size"])
				assert.Equal(t, []interface{}{"Cardiologist"}, p["specialists"])
			},
		},
		{
			events.NewTaskCompletedEvent("r", "Psychologist", "fan_out", false, "timeout", 1500*time.Millisecond),
			func(t *testing.T, p map[string]interface{}) {
				assert.Equal(t, "Psychologist", p["task"])
				assert.Equal(t, false, p["success"])
				assert.Equal(t, "1.5s", p["duration"])
				assert.Equal(t, "timeout", p["error"])
			},
		},
		{
			events.NewRunCompletedEvent("r", 3*time.Second, true),
			func(t *testing.T, p map[string]interface{}) {
				assert.Equal(t, "3s", p["duration"])
				assert.Equal(t, true, p["degraded"])
			},
		},
		{
			events.NewRunFailedEvent("r", core.CodeSynthesisFailed, "synthesis failed"),
			func(t *testing.T, p map[string]interface{}) {
				assert.Equal(t, core.CodeSynthesisFailed, p["code"])
			},
		},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.sendEventToClient(rec, mockFlusher{}, tt.event)
		name, payload := parseSSE(t, rec.Body.String())
		assert.Equal(t, tt.event.EventType(), name)
		assert.Equal(t, "r", payload["run_id"])
		tt.check(t, payload)
	}
}

func readSSEEvent(t *testing.T, r *bufio.Reader) (string, map[string]interface{}) {
	t.Helper()
	var block strings.Builder
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" {
			break
		}
		block.WriteString(line)
	}
	return parseSSE(t, block.String())
}

func parseSSE(t *testing.T, body string) (eventType string, payload map[string]interface{}) {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
		}
		if strings.HasPrefix(line, "data: ") {
			raw := strings.TrimPrefix(line, "data: ")
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				t.Fatalf("failed to unmarshal SSE data: %v", err)
			}
		}
	}
	return eventType, payload
}
