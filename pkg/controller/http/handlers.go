package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/esg-lab/pythia/pkg/domain/model"
	"github.com/esg-lab/pythia/pkg/usecase"
	"github.com/esg-lab/pythia/pkg/utils/logging"
	"github.com/esg-lab/pythia/pkg/utils/safe"
)

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		handleError(ctx, w, goerr.Wrap(err, "failed to marshal response"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("failed to write response", "error", err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(usecase.ErrValidation, "malformed JSON payload", goerr.V("cause", err.Error()))
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status    string `json:"status"`
		IndexSize int    `json:"index_size"`
	}
	respondJSON(r.Context(), w, http.StatusOK, response{
		Status:    "ok",
		IndexSize: s.uc.Index().Size(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A rebuild runs to completion once started; a client disconnect must
	// not abort it halfway through embedding.
	ctx := context.WithoutCancel(r.Context())

	count, err := s.uc.Refresh(ctx)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	type response struct {
		Status        string `json:"status"`
		ChunksIndexed int    `json:"chunks_indexed"`
	}
	respondJSON(ctx, w, http.StatusOK, response{Status: "ok", ChunksIndexed: count})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Text     string `json:"text"`
		TopK     int    `json:"top_k"`
		Model    string `json:"model"`
		Language string `json:"language"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}

	answer, err := s.uc.Ask(ctx, usecase.AskInput{
		Text:     req.Text,
		TopK:     req.TopK,
		Model:    req.Model,
		Language: req.Language,
	})
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	type response struct {
		Answer  string          `json:"answer"`
		Sources []model.ChunkID `json:"sources"`
		Scores  []float64       `json:"scores"`
	}
	respondJSON(ctx, w, http.StatusOK, response{
		Answer:  answer.Text,
		Sources: answer.SourceIDs(),
		Scores:  answer.Scores(),
	})
}

func (s *Server) handleSimilarDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Text string `json:"text"`
		TopK int    `json:"top_k"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}

	results, err := s.uc.SimilarChunks(ctx, req.Text, req.TopK)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	type document struct {
		ID      model.ChunkID `json:"id"`
		Source  string        `json:"source"`
		Content string        `json:"content"`
		Score   float64       `json:"score"`
	}
	type response struct {
		Documents []document `json:"documents"`
	}

	resp := response{Documents: make([]document, len(results))}
	for i, rc := range results {
		resp.Documents[i] = document{
			ID:      rc.Chunk.ID,
			Source:  rc.Chunk.SourceName,
			Content: rc.Chunk.Text,
			Score:   rc.Score,
		}
	}
	respondJSON(ctx, w, http.StatusOK, resp)
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		handleError(ctx, w, goerr.Wrap(usecase.ErrValidation, "malformed multipart payload", goerr.V("cause", err.Error())))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		handleError(ctx, w, goerr.Wrap(usecase.ErrValidation, "image file is required"))
		return
	}
	defer safe.Close(ctx, file)

	data, err := io.ReadAll(file)
	if err != nil {
		handleError(ctx, w, goerr.Wrap(err, "failed to read image file"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	analysis, err := s.uc.AnalyzeImage(ctx, data, mimeType)
	if err != nil {
		handleError(ctx, w, err)
		return
	}

	type response struct {
		AnalysisText string `json:"analysis_text"`
	}
	respondJSON(ctx, w, http.StatusOK, response{AnalysisText: analysis})
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Question    string `json:"question"`
		ModelAnswer string `json:"model_answer"`
		Rating      int    `json:"rating"`
		Comments    string `json:"comments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		handleError(ctx, w, err)
		return
	}

	rec := &model.Feedback{
		Timestamp:   time.Now().UTC(),
		Question:    req.Question,
		ModelAnswer: req.ModelAnswer,
		Rating:      req.Rating,
		Comments:    req.Comments,
	}
	if err := s.uc.SubmitFeedback(ctx, rec); err != nil {
		handleError(ctx, w, err)
		return
	}

	type response struct {
		Status string `json:"status"`
	}
	respondJSON(ctx, w, http.StatusOK, response{Status: "ok"})
}
