package app

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"journal/api/internal/envelope"
	"journal/api/internal/export"
	"journal/api/internal/store"
)

func (s *HTTPServer) handleListEntries(w http.ResponseWriter, r *http.Request, session Session) {
	entries, err := s.service.ListEntries(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch journal entries")
		return
	}
	envelope.Write(w, envelope.List(entries))
}

func (s *HTTPServer) handleCreateEntry(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Failed to create journal entry")
		return
	}
	if strings.TrimSpace(body.Title) == "" || strings.TrimSpace(body.Content) == "" {
		envelope.Write(w, envelope.Fail(envelope.KindValidation, "Title and content are required", ""))
		return
	}

	entry, err := s.service.CreateEntry(r.Context(), session, body.Title, body.Content)
	if err != nil {
		s.fail(w, r, err, "Failed to create journal entry")
		return
	}
	envelope.Write(w, envelope.OK(entry).WithMessage("Journal entry created successfully"))
}

func (s *HTTPServer) handleGetEntry(w http.ResponseWriter, r *http.Request, session Session) {
	entry, err := s.service.GetEntry(r.Context(), session.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "Failed to fetch journal entry")
		return
	}
	if entry == nil {
		envelope.Write(w, envelope.Fail(envelope.KindNotFound, msgEntryNotFound, ""))
		return
	}
	envelope.Write(w, envelope.OK(entry))
}

func (s *HTTPServer) handleUpdateEntry(w http.ResponseWriter, r *http.Request, session Session) {
	var update store.EntryUpdate
	if err := decodeBody(r, &update); err != nil {
		s.fail(w, r, err, "Failed to update journal entry")
		return
	}
	if update.Empty() {
		envelope.Write(w, envelope.Fail(envelope.KindValidation, "Title or content is required", ""))
		return
	}

	entry, err := s.service.UpdateEntry(r.Context(), session, mux.Vars(r)["id"], update)
	if err != nil {
		s.fail(w, r, err, "Failed to update journal entry")
		return
	}
	envelope.Write(w, envelope.OK(entry).WithMessage("Journal entry updated successfully"))
}

func (s *HTTPServer) handleDeleteEntry(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteEntry(r.Context(), session.UserID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err, "Failed to delete journal entry")
		return
	}
	envelope.Write(w, envelope.Message("Journal entry deleted successfully"))
}

func (s *HTTPServer) handleEntriesWithAnalysis(w http.ResponseWriter, r *http.Request, session Session) {
	items, err := s.service.ListEntriesWithAnalysis(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch journal entries with analysis")
		return
	}
	envelope.Write(w, envelope.List(items))
}

func (s *HTTPServer) handleCreateAnalysis(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		EntryID     string   `json:"entryId"`
		Summary     string   `json:"summary"`
		Emotions    []string `json:"emotions"`
		Suggestions []string `json:"suggestions"`
		Model       string   `json:"model"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Failed to create AI analysis")
		return
	}

	var missing []string
	if strings.TrimSpace(body.EntryID) == "" {
		missing = append(missing, "entryId")
	}
	if strings.TrimSpace(body.Summary) == "" {
		missing = append(missing, "summary")
	}
	if body.Emotions == nil {
		missing = append(missing, "emotions")
	}
	if body.Suggestions == nil {
		missing = append(missing, "suggestions")
	}
	if strings.TrimSpace(body.Model) == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		envelope.Write(w, envelope.Fail(envelope.KindValidation, requiredMessage(missing), ""))
		return
	}

	analysis, err := s.service.CreateAnalysis(r.Context(), session.UserID, store.AnalysisInput{
		EntryID:     body.EntryID,
		Summary:     body.Summary,
		Emotions:    body.Emotions,
		Suggestions: body.Suggestions,
		Model:       body.Model,
	})
	if err != nil {
		s.fail(w, r, err, "Failed to create AI analysis")
		return
	}
	envelope.Write(w, envelope.OK(analysis).WithMessage("AI analysis created successfully"))
}

func (s *HTTPServer) handleAnalyzeEntry(w http.ResponseWriter, r *http.Request, session Session) {
	analysis, err := s.service.AnalyzeEntry(r.Context(), session.UserID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err, "Failed to analyze journal entry")
		return
	}
	envelope.Write(w, envelope.OK(analysis).WithMessage("AI analysis created successfully"))
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		envelope.Write(w, envelope.Fail(envelope.KindValidation, "q is required", ""))
		return
	}
	limit, ok := intParam(w, query.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := intParam(w, query.Get("offset"), "offset")
	if !ok {
		return
	}

	resp, err := s.service.Search(r.Context(), session.UserID, text, limit, offset)
	if err != nil {
		s.fail(w, r, err, "Failed to search journal entries")
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(resp.Total))
	envelope.Write(w, envelope.List(resp.Results))
}

func (s *HTTPServer) handleEntryHistory(w http.ResponseWriter, r *http.Request, session Session) {
	limit, ok := intParam(w, r.URL.Query().Get("limit"), "limit")
	if !ok {
		return
	}
	revisions, err := s.service.EntryHistory(r.Context(), session.UserID, mux.Vars(r)["id"], limit)
	if err != nil {
		s.fail(w, r, err, "Failed to fetch entry history")
		return
	}
	envelope.Write(w, envelope.List(revisions))
}

func (s *HTTPServer) handleEntryRevision(w http.ResponseWriter, r *http.Request, session Session) {
	vars := mux.Vars(r)
	revision, err := s.service.EntryRevision(r.Context(), session.UserID, vars["id"], vars["rev"])
	if err != nil {
		s.fail(w, r, err, "Failed to fetch entry revision")
		return
	}
	envelope.Write(w, envelope.OK(revision))
}

func (s *HTTPServer) handleExportEntry(w http.ResponseWriter, r *http.Request, session Session) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err, "Failed to export journal entry")
		return
	}
	result, err := s.service.ExportEntry(r.Context(), session, mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err, "Failed to export journal entry")
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleArchiveEntry(w http.ResponseWriter, r *http.Request, session Session) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.fail(w, r, err, "Failed to archive journal entry")
		return
	}
	object, err := s.service.ArchiveEntry(r.Context(), session, mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err, "Failed to archive journal entry")
		return
	}
	envelope.Write(w, envelope.OK(object).WithMessage("Journal entry archived"))
}

// intParam parses an optional non-negative integer query parameter. On a
// bad value it writes the 400 itself and returns false.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		envelope.Write(w, envelope.Fail(envelope.KindValidation, name+" must be a non-negative integer", ""))
		return 0, false
	}
	return value, true
}
