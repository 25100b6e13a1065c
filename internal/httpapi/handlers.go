package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/answer"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/ingest"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/modelconfig"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/retrieve"
)

// statsResponse mirrors the GET /stats shape exactly.
type statsResponse struct {
	ChunkStore struct {
		Documents  int `json:"documents"`
		Chunks     int `json:"chunks"`
		FTSEntries int `json:"fts_entries"`
	} `json:"chunk_store"`
	VectorIndex struct {
		Exists    bool   `json:"exists"`
		NTotal    int    `json:"ntotal"`
		Dim       int    `json:"dim"`
		Type      string `json:"type"`
		Trained   bool   `json:"trained"`
		SizeBytes int64  `json:"size_bytes"`
	} `json:"vector_index"`
	Accelerator struct {
		BuildHasGPU    bool     `json:"build_has_gpu"`
		DevicesVisible []string `json:"devices_visible"`
	} `json:"accelerator"`
	ActiveModels struct {
		Chat         string `json:"chat"`
		Embed        string `json:"embed"`
		BaseURL      string `json:"base_url"`
		NumPredict   int    `json:"num_predict"`
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
	} `json:"active_models"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	st, err := s.app.Store.Stats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ftsCount, err := s.app.Lex.Count(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var resp statsResponse
	resp.ChunkStore.Documents = st.DocumentCount
	resp.ChunkStore.Chunks = st.ChunkCount
	resp.ChunkStore.FTSEntries = ftsCount

	exists, count, dim := s.app.VectorStats()
	resp.VectorIndex.Exists = exists
	resp.VectorIndex.NTotal = count
	resp.VectorIndex.Dim = dim
	resp.VectorIndex.Type = "hnsw"
	resp.VectorIndex.Trained = exists

	resp.Accelerator.BuildHasGPU = false
	resp.Accelerator.DevicesVisible = []string{}

	cur := s.app.Models.Current()
	resp.ActiveModels.Chat = cur.ChatModel
	resp.ActiveModels.Embed = cur.EmbedModel
	resp.ActiveModels.BaseURL = s.app.Cfg.Chat.Host
	resp.ActiveModels.NumPredict = s.app.Cfg.Chat.NumPredict
	resp.ActiveModels.ChunkSize = s.app.Cfg.Search.ChunkSize
	resp.ActiveModels.ChunkOverlap = s.app.Cfg.Search.ChunkOverlap

	writeJSON(w, http.StatusOK, resp)
}

// ingestResponse mirrors the POST /ingest shape.
type ingestResponse struct {
	Received       []string              `json:"received"`
	DocumentsAdded int                   `json:"documents_added"`
	ChunksAdded    int                   `json:"chunks_added"`
	VectorsAdded   int                   `json:"vectors_added"`
	Skipped        []ingest.SkippedFile  `json:"skipped"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files in field \"files\"")
		return
	}

	received := make([]string, 0, len(headers))
	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading "+fh.Filename+": "+err.Error())
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "reading "+fh.Filename+": "+err.Error())
			return
		}
		received = append(received, fh.Filename)
		files = append(files, ingest.File{
			Filename:    fh.Filename,
			Content:     content,
			ContentType: contentTypeOf(fh.Filename),
		})
	}

	summary, err := s.app.IngestFiles(r.Context(), files)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Received:       received,
		DocumentsAdded: summary.DocumentsAdded,
		ChunksAdded:    summary.ChunksAdded,
		VectorsAdded:   summary.VectorsAdded,
		Skipped:        summary.Skipped,
	})
}

func contentTypeOf(filename string) ingest.ContentType {
	if len(filename) > 4 && filename[len(filename)-4:] == ".pdf" {
		return ingest.ContentTypePDF
	}
	return ingest.ContentTypeText
}

// queryRequest mirrors the POST /query request shape.
type queryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	BM25K     int    `json:"bm25_k"`
	VecK      int    `json:"vec_k"`
	TopK      int    `json:"top_k"`
	MemoryK   int    `json:"memory_k"`
}

type queryDebug struct {
	BM25Hits       int            `json:"bm25_hits"`
	VecHits        int            `json:"vec_hits"`
	Fused          int            `json:"fused"`
	CitationOK     bool           `json:"citation_ok"`
	CitationReport answer.Report  `json:"citation_report"`
}

type queryResponse struct {
	Answer  string           `json:"answer"`
	Sources []answer.Source  `json:"sources"`
	Debug   queryDebug       `json:"debug"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	rp := s.app.RetrieveParams()
	if req.BM25K > 0 {
		rp.BM25K = req.BM25K
	}
	if req.VecK > 0 {
		rp.VecK = req.VecK
	}
	if req.TopK > 0 {
		rp.FinalK = req.TopK
	}

	flags := s.app.AnswerFlags()
	if req.MemoryK > 0 {
		flags.MemoryK = req.MemoryK
	}

	out, err := s.app.Answer.Answer(r.Context(), req.SessionID, req.Query, s.app.ChatClient(), s.app.Embedder(), s.app.OpenVector, rp, flags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:  out.Answer,
		Sources: out.Sources,
		Debug: queryDebug{
			BM25Hits:       out.BM25Hits,
			VecHits:        out.VecHits,
			Fused:          out.Fused,
			CitationOK:     out.CitationOK,
			CitationReport: out.CitationReport,
		},
	})
}

// debugRetrievalResponse mirrors the POST /debug/retrieval shape.
type debugRetrievalResponse struct {
	MatchExpr        string             `json:"match_expr"`
	LexicalHits      []retrieve.LexHit  `json:"lexical_hits"`
	VectorHits       []retrieve.VecHit  `json:"vector_hits"`
	Fused            []fusedDebugHit    `json:"fused"`
	OverlapCount     int                `json:"overlap_count"`
	RRFParams        retrieve.Params    `json:"rrf_params"`
	TimingsMillis    int64              `json:"timings_millis"`
	DimensionMismatch bool              `json:"dimension_mismatch"`
	Warnings         []retrieve.Warning `json:"warnings,omitempty"`
}

type fusedDebugHit struct {
	ChunkID    int64   `json:"chunk_id"`
	FusedScore float64 `json:"fused_score"`
	LexRank    int     `json:"lex_rank"`
	VecRank    int     `json:"vec_rank"`
}

func (s *Server) handleDebugRetrieval(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	rp := s.app.RetrieveParams()
	if req.BM25K > 0 {
		rp.BM25K = req.BM25K
	}
	if req.VecK > 0 {
		rp.VecK = req.VecK
	}
	if req.TopK > 0 {
		rp.FinalK = req.TopK
	}

	start := time.Now()
	res, err := s.app.Retrieve.Retrieve(r.Context(), req.Query, s.app.Embedder(), s.app.OpenVector, rp)
	elapsed := time.Since(start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	lexIDs := make(map[int64]struct{}, len(res.LexHits))
	for _, h := range res.LexHits {
		lexIDs[h.ChunkID] = struct{}{}
	}
	overlap := 0
	for _, h := range res.VecHits {
		if _, ok := lexIDs[h.ChunkID]; ok {
			overlap++
		}
	}

	dimMismatch := false
	for _, warn := range res.Warnings {
		if warn.Kind == retrieve.WarningDimensionMismatch {
			dimMismatch = true
		}
	}

	fused := make([]fusedDebugHit, len(res.Hits))
	for i, h := range res.Hits {
		fused[i] = fusedDebugHit{
			ChunkID:    h.Chunk.ID,
			FusedScore: h.FusedScore,
			LexRank:    h.LexRank,
			VecRank:    h.VecRank,
		}
	}

	writeJSON(w, http.StatusOK, debugRetrievalResponse{
		MatchExpr:         res.MatchExpr,
		LexicalHits:       res.LexHits,
		VectorHits:        res.VecHits,
		Fused:             fused,
		OverlapCount:      overlap,
		RRFParams:         rp,
		TimingsMillis:     elapsed.Milliseconds(),
		DimensionMismatch: dimMismatch,
		Warnings:          res.Warnings,
	})
}

func (s *Server) handleDebugCitations(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query must not be empty")
		return
	}

	rp := s.app.RetrieveParams()
	flags := s.app.AnswerFlags()
	if req.MemoryK > 0 {
		flags.MemoryK = req.MemoryK
	}

	out, err := s.app.Answer.Answer(r.Context(), req.SessionID, req.Query, s.app.ChatClient(), s.app.Embedder(), s.app.OpenVector, rp, flags)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"answer":          out.Answer,
		"sources":         out.Sources,
		"citation_ok":     out.CitationOK,
		"citation_report": out.CitationReport,
	})
}

type chunkResponse struct {
	ChunkID    int64             `json:"chunk_id"`
	DocumentID int64             `json:"document_id"`
	Filename   string            `json:"filename"`
	ChunkIndex int               `json:"chunk_index"`
	Metadata   map[string]string `json:"metadata"`
	Text       string            `json:"text"`
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chunk id")
		return
	}

	c, err := s.app.Store.GetChunk(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "chunk not found")
		return
	}

	writeJSON(w, http.StatusOK, chunkResponse{
		ChunkID:    c.ID,
		DocumentID: c.DocumentID,
		Filename:   c.Filename(),
		ChunkIndex: c.Ordinal,
		Metadata:   c.Metadata,
		Text:       c.Content,
	})
}

type modelsResponse struct {
	Current   modelsCurrent   `json:"current"`
	Available modelsAvailable `json:"available"`
	Error     string          `json:"error,omitempty"`
}

type modelsCurrent struct {
	Chat  string `json:"chat"`
	Embed string `json:"embed"`
}

type modelsAvailable struct {
	ChatModels  []string `json:"chat_models"`
	EmbedModels []string `json:"embed_models"`
	All         []string `json:"all"`
}

func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	cur := s.app.Models.Current()
	writeJSON(w, http.StatusOK, modelsResponse{
		Current: modelsCurrent{Chat: cur.ChatModel, Embed: cur.EmbedModel},
		Available: modelsAvailable{
			ChatModels:  []string{cur.ChatModel},
			EmbedModels: []string{cur.EmbedModel},
			All:         []string{cur.ChatModel, cur.EmbedModel},
		},
	})
}

type setModelsRequest struct {
	ChatModel  string `json:"chat_model"`
	EmbedModel string `json:"embed_model"`
}

type setModelsResponse struct {
	Success bool                           `json:"success"`
	Changes map[string]modelconfig.Change  `json:"changes"`
	Current modelsCurrent                  `json:"current"`
}

func (s *Server) handleSetModels(w http.ResponseWriter, r *http.Request) {
	var req setModelsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	result, err := s.app.Models.Set(r.Context(), req.ChatModel, req.EmbedModel)
	if err != nil {
		status := http.StatusInternalServerError
		if rerrors.GetCode(err) == rerrors.ErrCodeUnknownModel {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, setModelsResponse{Success: false, Changes: result.Changes})
		return
	}

	cur := s.app.Models.Current()
	writeJSON(w, http.StatusOK, setModelsResponse{
		Success: true,
		Changes: result.Changes,
		Current: modelsCurrent{Chat: cur.ChatModel, Embed: cur.EmbedModel},
	})
}
