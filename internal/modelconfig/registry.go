// Package modelconfig implements C9, the model-config registry. It is the
// single owner of the active chat and embedding client handles: every other
// component consumes a snapshot of those two handles at the start of a
// request rather than holding its own reference, so a model switch is a
// single atomic pointer swap (the RCU design note), never a
// multi-component update.
package modelconfig

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/FamilOrujov/hybrid-rag-kb/internal/chatclient"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/embed"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/rerrors"
	"github.com/FamilOrujov/hybrid-rag-kb/internal/store"
)

// Embedder is the subset of embed.Embedder the registry depends on,
// narrowed so probe-construction can be swapped in tests.
type Embedder = embed.Embedder

// ChatClient is the subset of chatclient.Client the registry depends on.
type ChatClient interface {
	Complete(ctx context.Context, messages []chatclient.Message) (string, error)
	Available(ctx context.Context) bool
	ModelName() string
	Close() error
}

// EmbedderFactory builds a new embedder for the given model name, used by
// Set to construct and probe a candidate before swapping it in.
type EmbedderFactory func(ctx context.Context, model string) (Embedder, error)

// ChatFactory builds a new chat client for the given model name.
type ChatFactory func(model string) ChatClient

// VectorDimension reports the chunk vector index's currently stored
// dimension, or 0 if the index has never been opened. The registry uses
// this to detect a dimension mismatch on an embed-model swap without
// owning the vector index itself.
type VectorDimension func() int

// Current is an immutable snapshot of the active client handles and model
// names, returned by Registry.Current. Callers that start a request take
// one snapshot and use it for the whole request, so an in-flight model
// swap never changes which client a request talks to partway through.
type Current struct {
	ChatModel  string
	EmbedModel string
	Chat       ChatClient
	Embed      Embedder
}

// Change describes what happened to one field of a Set call, returned to
// the caller and serialized onto the models endpoint.
type Change struct {
	From           string `json:"from"`
	To             string `json:"to"`
	NewDimension   int    `json:"new_dimension,omitempty"`
	IndexDimension int    `json:"index_dimension,omitempty"`
	DimensionWarn  string `json:"dimension_warning,omitempty"`
}

// SetResult is the outcome of Set: per-field changes and any field errors.
// A non-empty Errors means the named field failed with an unknown-model
// error, while every other field's change is still applied.
type SetResult struct {
	Changes map[string]Change
	Errors  []string
}

// Registry loads persisted model names on startup, falls back to compiled
// defaults, and exposes an atomically-swappable Current snapshot.
type Registry struct {
	store store.Store

	chatFactory  ChatFactory
	embedFactory EmbedderFactory
	vectorDim    VectorDimension

	current atomic.Pointer[Current]
}

// New constructs the registry, loading persisted config from store if
// present, else applying defaultChat/defaultEmbed (the compiled defaults).
func New(ctx context.Context, st store.Store, chatFactory ChatFactory, embedFactory EmbedderFactory, vectorDim VectorDimension, defaultChat, defaultEmbed string) (*Registry, error) {
	r := &Registry{
		store:        st,
		chatFactory:  chatFactory,
		embedFactory: embedFactory,
		vectorDim:    vectorDim,
	}

	chatModel, embedModel := defaultChat, defaultEmbed
	if row, err := st.GetModelConfig(ctx); err == nil && row != nil {
		if row.ChatModel != "" {
			chatModel = row.ChatModel
		}
		if row.EmbedModel != "" {
			embedModel = row.EmbedModel
		}
	}

	embedder, err := embedFactory(ctx, embedModel)
	if err != nil {
		return nil, rerrors.InternalError("constructing initial embedder", err)
	}

	snap := &Current{
		ChatModel:  chatModel,
		EmbedModel: embedModel,
		Chat:       chatFactory(chatModel),
		Embed:      embedder,
	}
	r.current.Store(snap)

	if row, err := st.GetModelConfig(ctx); err != nil || row == nil {
		_ = st.SaveModelConfig(ctx, &store.ModelConfigRow{
			ChatModel:      chatModel,
			EmbedModel:     embedModel,
			EmbedDimension: embedder.Dimensions(),
			UpdatedAt:      time.Now(),
		})
	}

	return r, nil
}

// Current returns the active snapshot. Safe to call concurrently with Set.
func (r *Registry) Current() *Current {
	return r.current.Load()
}

// Set probes each requested field, accepts or rejects it independently,
// then atomically swaps the snapshot and persists the result.
func (r *Registry) Set(ctx context.Context, chatModel, embedModel string) (*SetResult, error) {
	cur := r.current.Load()
	next := *cur
	result := &SetResult{Changes: map[string]Change{}}

	if chatModel != "" && chatModel != cur.ChatModel {
		candidate := r.chatFactory(chatModel)
		if err := probeChat(ctx, candidate); err != nil {
			if rerrors.GetCode(err) == rerrors.ErrCodeUnknownModel {
				result.Errors = append(result.Errors, err.Error())
			} else {
				// Non-"not found" errors are treated as a cold-load signal,
				// not a failure: accept the model anyway.
				next.Chat = candidate
				next.ChatModel = chatModel
				result.Changes["chat_model"] = Change{From: cur.ChatModel, To: chatModel}
			}
		} else {
			next.Chat = candidate
			next.ChatModel = chatModel
			result.Changes["chat_model"] = Change{From: cur.ChatModel, To: chatModel}
		}
	}

	if embedModel != "" && embedModel != cur.EmbedModel {
		candidate, err := r.embedFactory(ctx, embedModel)
		if err != nil {
			result.Errors = append(result.Errors, rerrors.UnknownModel(embedModel).Error())
		} else {
			newDim := candidate.Dimensions()
			oldDim := r.vectorDim()

			change := Change{From: cur.EmbedModel, To: embedModel, NewDimension: newDim, IndexDimension: oldDim}
			if oldDim != 0 && oldDim != newDim {
				// Dimension mismatch never blocks the swap: the operator
				// resets the data directory when ready.
				change.DimensionWarn = "embedding dimension changed from " +
					strconv.Itoa(oldDim) + " to " + strconv.Itoa(newDim) +
					"; the vector index was NOT reset. Run a reset before ingesting more documents, or revert the embed model."
			}
			next.Embed = candidate
			next.EmbedModel = embedModel
			result.Changes["embed_model"] = change
		}
	}

	if len(result.Errors) > 0 && len(result.Changes) == 0 {
		return result, rerrors.UnknownModel(chatModel + "/" + embedModel)
	}

	if len(result.Changes) > 0 {
		r.current.Store(&next)
		_ = r.store.SaveModelConfig(ctx, &store.ModelConfigRow{
			ChatModel:      next.ChatModel,
			EmbedModel:     next.EmbedModel,
			EmbedDimension: next.Embed.Dimensions(),
			UpdatedAt:      time.Now(),
		})
	}

	return result, nil
}

// probeChat sends a minimal exchange to distinguish "model not found" from
// a cold-load-in-progress error.
func probeChat(ctx context.Context, c ChatClient) error {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.Complete(probeCtx, []chatclient.Message{{Role: chatclient.RoleUser, Content: "ping"}})
	if err == nil {
		return nil
	}
	if isModelNotFound(err) {
		return rerrors.UnknownModel(c.ModelName())
	}
	return err // cold-load or transient: caller treats as accept-anyway
}

func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
