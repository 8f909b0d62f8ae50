package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hugo-lorenzo-mato/quorum-dx/internal/core"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/intake"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/diagnosis"
	"github.com/hugo-lorenzo-mato/quorum-dx/internal/service/report"
)

// CreateDiagnosisRequest is the JSON body of POST /api/v1/diagnoses.
type CreateDiagnosisRequest struct {
	Document string `json:"document"`
	Source   string `json:"source,omitempty"`
}

// DiagnosisResponse describes a finished or partially finished run.
type DiagnosisResponse struct {
	RunID       string         `json:"run_id"`
	State       core.RunState  `json:"state"`
	Report      string         `json:"report,omitempty"`
	Degraded    bool           `json:"degraded"`
	Outcomes    []core.Outcome `json:"outcomes"`
	Synthesis   *core.Outcome  `json:"synthesis,omitempty"`
	Duration    string         `json:"duration"`
	ReportFiles *report.Paths  `json:"report_files,omitempty"`
	Error       *errorBody     `json:"error,omitempty"`
}

// SpecialistsResponse lists the configured pipeline.
type SpecialistsResponse struct {
	Specialists []core.TaskID `json:"specialists"`
	Synthesis   core.TaskID   `json:"synthesis"`
}

// DiagnosisListResponse wraps run summaries.
type DiagnosisListResponse struct {
	Runs  []core.RunSummary `json:"runs"`
	Count int               `json:"count"`
}

func newDiagnosisResponse(res *diagnosis.Result) DiagnosisResponse {
	return DiagnosisResponse{
		RunID:     string(res.RunID),
		State:     res.State,
		Report:    res.Report,
		Degraded:  res.Degraded(),
		Outcomes:  res.Outcomes,
		Synthesis: res.Synthesis,
		Duration:  res.Duration.String(),
	}
}

// handleCreateDiagnosis runs a document through both stages and answers with
// the result. The body is JSON, a form upload with a "report" file, or the
// raw document as text/plain.
func (s *Server) handleCreateDiagnosis(w http.ResponseWriter, r *http.Request) {
	text, source, err := s.readDocument(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	res, runErr := s.diagnoser.DiagnoseText(r.Context(), text, source)
	if res == nil {
		if runErr == nil {
			respondError(w, http.StatusInternalServerError, "run produced no result")
			return
		}
		respondDomainError(w, runErr)
		return
	}

	resp := newDiagnosisResponse(res)
	if s.reports != nil {
		paths, err := s.reports.WriteResult(res, source)
		if err != nil {
			s.logger.WithRun(string(res.RunID)).Error("writing report", "error", err)
		}
		resp.ReportFiles = paths
	}

	if runErr != nil {
		// Synthesis failed: the specialist outcomes are still returned.
		status, _ := httpStatusForDomainError(runErr)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		body := domainErrorBody(runErr)
		resp.Error = &body
		respondJSON(w, status, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) readDocument(r *http.Request) (text, source string, err error) {
	limit := s.intake.MaxBytes
	if limit <= 0 {
		limit = core.DefaultMaxDocumentBytes
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		// JSON escaping can inflate the body well beyond the document size.
		maxBody := int64(limit)*6 + 4096
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return "", "", core.ErrValidation(core.CodeInvalidRequest, "reading body: "+err.Error())
		}
		if int64(len(data)) > maxBody {
			return "", "", core.ErrInputPrecondition(core.CodeDocumentTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxBody)).WithDetail("limit", limit)
		}
		var req CreateDiagnosisRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return "", "", core.ErrValidation(core.CodeInvalidRequest, "invalid JSON body: "+err.Error())
		}
		if len(req.Document) > limit {
			return "", "", core.ErrInputPrecondition(core.CodeDocumentTooLarge,
				fmt.Sprintf("document is %d bytes, limit is %d", len(req.Document), limit)).WithDetail("limit", limit)
		}
		return strings.ToValidUTF8(req.Document, ""), sourceName(req.Source), nil
	case "multipart/form-data":
		return s.readUpload(r)
	case "", "text/plain", "text/markdown":
		text, err := intake.FromReader(r.Body, s.intake)
		if err != nil {
			return "", "", err
		}
		return text, sourceName(r.URL.Query().Get("source")), nil
	default:
		return "", "", core.ErrInputPrecondition(core.CodeUnsupportedFormat, "unsupported content type "+mediaType)
	}
}

// readUpload reads the "report" file field of a form upload. Other parts
// are skipped.
func (s *Server) readUpload(r *http.Request) (text, source string, err error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return "", "", core.ErrValidation(core.CodeInvalidRequest, "invalid multipart body: "+err.Error())
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", "", core.ErrValidation(core.CodeInvalidRequest, `no "report" file in upload`)
		}
		if err != nil {
			return "", "", core.ErrValidation(core.CodeInvalidRequest, "invalid multipart body: "+err.Error())
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}

		name := part.FileName()
		if name == "" {
			_ = part.Close()
			return "", "", core.ErrValidation(core.CodeInvalidRequest, `"report" field is not a file`)
		}
		if !s.intake.Supported(name) {
			_ = part.Close()
			return "", "", core.ErrInputPrecondition(core.CodeUnsupportedFormat,
				fmt.Sprintf("%s: unsupported format, accepted: %s", intake.SanitizeFilename(name), strings.Join(s.acceptedExtensions(), ", "))).
				WithDetail("extension", filepath.Ext(name))
		}
		text, err := intake.FromReader(part, s.intake)
		_ = part.Close()
		if err != nil {
			return "", "", err
		}
		return text, sourceName(name), nil
	}
}

// uploadField is the form field carrying the uploaded document.
const uploadField = "report"

func (s *Server) acceptedExtensions() []string {
	if len(s.intake.Extensions) == 0 {
		return intake.DefaultExtensions
	}
	return s.intake.Extensions
}

// sourceName turns a client-supplied label into a safe file name.
func sourceName(name string) string {
	if name == "" {
		return "api"
	}
	if clean := intake.SanitizeFilename(name); clean != "" {
		return clean
	}
	return "api"
}

// handleListDiagnoses lists stored runs, newest first.
func (s *Server) handleListDiagnoses(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing runs", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []core.RunSummary{}
	}
	respondJSON(w, http.StatusOK, DiagnosisListResponse{Runs: runs, Count: len(runs)})
}

// handleGetDiagnosis returns a stored run record.
func (s *Server) handleGetDiagnosis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}

	runID := chi.URLParam(r, "runID")
	rec, err := s.store.Load(r.Context(), core.RunID(runID))
	if err != nil {
		s.logger.WithRun(runID).Error("loading run", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if rec == nil {
		respondDomainError(w, core.ErrNotFound("run", runID))
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// handleListSpecialists returns the specialist identities and the synthesis task.
func (s *Server) handleListSpecialists(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, SpecialistsResponse{
		Specialists: s.diagnoser.Specialists(),
		Synthesis:   s.diagnoser.SynthesisID(),
	})
}
