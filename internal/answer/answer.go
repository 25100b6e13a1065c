package answer

import (
	"context"
	"time"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/chatclient"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/retrieve"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/store"
)

// RefusalText is the canned answer returned when retrieval finds nothing.
const RefusalText = "I don't have enough information in the indexed documents to answer this question."

// ChatClient is the subset of chatclient.Client the assembler depends on,
// narrowed so tests can substitute a fake.
type ChatClient interface {
	Complete(ctx context.Context, messages []chatclient.Message) (string, error)
}

// Flags are the citation enforcement knobs.
type Flags struct {
	MinUniqueCitations          int
	RequireCitationPerParagraph bool
	RewriteOnFail               bool
	MemoryK                     int
}

// Source is one retrieved-and-cited chunk, shaped for the query response.
type Source struct {
	ChunkID    int64  `json:"chunk_id"`
	Filename   string `json:"filename"`
	ChunkIndex int    `json:"chunk_index"`
	FusedScore float64 `json:"fused_score"`
}

// Output is the full result of Answer, matching the query and
// citation-debug response shapes.
type Output struct {
	Answer         string
	Sources        []Source
	BM25Hits       int
	VecHits        int
	Fused          int
	CitationOK     bool
	CitationReport Report
	RetrievalWarnings []retrieve.Warning
	MatchExpr      string
}

// Assembler drives the chat model over retrieved context, validates the
// citations in its answer, and repairs them deterministically on failure.
type Assembler struct {
	store    store.Store
	retrieve *retrieve.Engine
}

// New constructs the answer assembler over the shared store and retriever.
func New(st store.Store, retriever *retrieve.Engine) *Assembler {
	return &Assembler{store: st, retrieve: retriever}
}

// Answer runs the full grounded-QA pipeline for one turn of a session.
func (a *Assembler) Answer(ctx context.Context, sessionID, query string, chat ChatClient, embedder embed.Embedder, openVec retrieve.VectorIndexOpener, rp retrieve.Params, flags Flags) (*Output, error) {
	if sessionID != "" {
		_ = a.store.AppendChatMessage(ctx, &store.ChatMessage{
			SessionID: sessionID,
			Role:      "user",
			Content:   query,
			CreatedAt: time.Now(),
		})
	}

	res, err := a.retrieve.Retrieve(ctx, query, embedder, openVec, rp)
	if err != nil {
		return nil, err
	}

	if len(res.Hits) == 0 {
		out := &Output{
			Answer:            RefusalText,
			Sources:           nil,
			BM25Hits:          len(res.LexHits),
			VecHits:           len(res.VecHits),
			Fused:             0,
			CitationOK:        true,
			CitationReport:    Report{Reason: "no retrieved chunks"},
			RetrievalWarnings: res.Warnings,
			MatchExpr:         res.MatchExpr,
		}
		if sessionID != "" {
			_ = a.store.AppendChatMessage(ctx, &store.ChatMessage{
				SessionID: sessionID,
				Role:      "assistant",
				Content:   out.Answer,
				CreatedAt: time.Now(),
			})
		}
		return out, nil
	}

	allowedIDs := make([]int64, len(res.Hits))
	allowed := make(map[int64]struct{}, len(res.Hits))
	tokens := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		allowedIDs[i] = h.Chunk.ID
		allowed[h.Chunk.ID] = struct{}{}
		tokens[i] = CiteToken(h)
	}

	contextText := FormatContext(res.Hits)
	systemPrompt := BuildSystemPrompt(allowedIDs)

	messages := []chatclient.Message{{Role: chatclient.RoleSystem, Content: systemPrompt}}
	if sessionID != "" && flags.MemoryK > 0 {
		history, err := a.store.RecentChatMessages(ctx, sessionID, flags.MemoryK)
		if err == nil {
			for _, m := range history {
				role := chatclient.RoleUser
				if m.Role == "assistant" {
					role = chatclient.RoleAssistant
				} else if m.Role == "system" {
					role = chatclient.RoleSystem
				}
				messages = append(messages, chatclient.Message{Role: role, Content: m.Content})
			}
		}
	}
	messages = append(messages, chatclient.Message{
		Role:    chatclient.RoleUser,
		Content: "Question: " + query + "\n\nSource Documents:\n" + contextText,
	})

	raw, err := chat.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	cleaned := CleanAnswer(raw)

	minUnique := flags.MinUniqueCitations
	if minUnique <= 0 {
		minUnique = 1
	}
	ok, report := Validate(cleaned, allowed, minUnique, flags.RequireCitationPerParagraph)

	if !ok && flags.RewriteOnFail {
		if len(report.MissingParagraphs) > 0 {
			cleaned = InjectMissingCitations(cleaned, tokens, report.MissingParagraphs)
			ok, report = Validate(cleaned, allowed, minUnique, flags.RequireCitationPerParagraph)
		}
		if !ok && len(report.InvalidIDs) > 0 {
			cleaned = RewriteInvalidCitations(cleaned, tokens, report.InvalidIDs)
			ok, report = Validate(cleaned, allowed, minUnique, flags.RequireCitationPerParagraph)
		}
	}

	if sessionID != "" {
		_ = a.store.AppendChatMessage(ctx, &store.ChatMessage{
			SessionID: sessionID,
			Role:      "assistant",
			Content:   cleaned,
			CreatedAt: time.Now(),
		})
	}

	sources := make([]Source, len(res.Hits))
	for i, h := range res.Hits {
		sources[i] = Source{
			ChunkID:    h.Chunk.ID,
			Filename:   h.Chunk.Filename(),
			ChunkIndex: h.Chunk.Ordinal,
			FusedScore: h.FusedScore,
		}
	}

	return &Output{
		Answer:            cleaned,
		Sources:           sources,
		BM25Hits:          len(res.LexHits),
		VecHits:           len(res.VecHits),
		Fused:             len(res.Hits),
		CitationOK:        ok,
		CitationReport:    report,
		RetrievalWarnings: res.Warnings,
		MatchExpr:         res.MatchExpr,
	}, nil
}
