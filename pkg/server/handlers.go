package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/websocket"
	"github.com/haivivi/retrieva/go/pkg/answer"
	"github.com/haivivi/retrieva/go/pkg/ingest"
	"github.com/haivivi/retrieva/go/pkg/session"
)

type uploadResponse struct {
	Filename    string `json:"filename"`
	Status      string `json:"status"`
	ChunksAdded int    `json:"chunks_added"`
	SessionID   string `json:"session_id"`
	SessionName string `json:"session_name"`
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
	K         int    `json:"k,omitempty"`
}

type queryResponse struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Context  []session.Hit `json:"context"`
}

type deleteResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Warning   string `json:"warning,omitempty"`
}

// handleUpload extracts the uploaded document, then replaces the content of
// the target session with its chunks. Without a session_id (or with the
// literal "null" some clients send) a session named after the file is
// created. Extraction runs first, so a bad file changes nothing.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("missing file: %v", err))
		return
	}
	defer file.Close()
	filename := filepath.Base(hdr.Filename)

	sessionID := r.FormValue("session_id")
	if sessionID == "null" {
		sessionID = ""
	}

	text, err := s.extract(ctx, file, filename)
	if err != nil {
		var xe *ingest.ExtractError
		switch {
		case errors.As(err, &xe):
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("error reading %s: %v", filename, xe.Err))
		case errors.Is(err, ingest.ErrUnsupportedFormat):
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("unsupported file type: %q", filepath.Ext(filename)))
		default:
			s.writeError(w, err)
		}
		return
	}
	chunks := ingest.Split(text, s.cfg.SplitOptions...)

	reg := s.cfg.Registry
	if sessionID == "" {
		m, err := reg.Create(ctx, filename)
		if err != nil {
			s.writeError(w, err)
			return
		}
		sessionID = m.ID
	}
	store, err := reg.Get(ctx, sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// One document per session.
	if err := store.Clear(ctx); err != nil {
		s.writeError(w, err)
		return
	}
	if err := store.Add(ctx, chunks, filename); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info("server: uploaded", "session", sessionID, "file", filename, "chunks", len(chunks))
	writeJSON(w, http.StatusOK, uploadResponse{
		Filename:    filename,
		Status:      "Success",
		ChunksAdded: len(chunks),
		SessionID:   sessionID,
		SessionName: filename,
	})
}

// extract spools the upload to a temp file named with the original
// extension and loads its text.
func (s *Server) extract(ctx context.Context, src io.Reader, filename string) (string, error) {
	tmp, err := os.CreateTemp(s.cfg.TempDir, "upload-*"+filepath.Ext(filename))
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	_, err = io.Copy(tmp, src)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("server: save upload: %w", err)
	}
	return ingest.Load(ctx, tmp.Name(), s.cfg.LoadOptions...)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	resp, err := s.query(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// query retrieves context and generates the answer. Generation failures
// become the answer text; retrieval failures are returned.
func (s *Server) query(ctx context.Context, req queryRequest) (*queryResponse, error) {
	store, err := s.cfg.Registry.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	k := req.K
	if k <= 0 {
		k = s.cfg.K
	}
	hits, err := store.Search(ctx, req.Question, k)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []session.Hit{}
	}
	s.logger.Debug("server: query", "session", req.SessionID, "question", req.Question, "hits", len(hits))

	return &queryResponse{
		Question: req.Question,
		Answer:   s.answer(ctx, req.Question, hits),
		Context:  hits,
	}, nil
}

func (s *Server) answer(ctx context.Context, question string, hits []session.Hit) string {
	if s.cfg.Generator == nil {
		if len(hits) == 0 {
			return answer.NoInformation
		}
		return "Error: " + answer.ErrNoProvider.Error()
	}
	text, err := s.cfg.Generator.Answer(ctx, question, hits)
	if err != nil {
		s.logger.Warn("server: answer generation failed", "error", err)
		return fmt.Sprintf("Error generating answer: %v", err)
	}
	return text
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.cfg.Registry.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.cfg.Registry.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := deleteResponse{Status: "deleted", SessionID: id}
	if res.Partial() {
		resp.Warning = fmt.Sprintf("session files could not be removed: %v", res.CleanupErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWS answers queries sent as JSON text frames until the client closes
// the connection. Failed queries are answered with {"error": "..."}.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	ws.SetReadLimit(1 << 20)
	ctx := r.Context()

	for {
		var req queryRequest
		if err := ws.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("server: websocket read", "error", err)
			}
			return
		}
		var out any
		if resp, err := s.query(ctx, req); err != nil {
			_, detail := s.classify(err)
			out = map[string]string{"error": detail}
		} else {
			out = resp
		}
		if err := ws.WriteJSON(out); err != nil {
			return
		}
	}
}

// classify maps an error to an HTTP status and a client-facing message.
func (s *Server) classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, session.ErrEmbedding):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, session.ErrPersistence), errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, session.ErrCorruptedState):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, fmt.Sprintf("Internal Server Error: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, detail := s.classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("server: request failed", "status", status, "error", err)
	}
	writeDetail(w, status, detail)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
