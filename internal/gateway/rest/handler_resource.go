package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labdepot/labdepot/internal/query"
	"github.com/labdepot/labdepot/pkg/model"
)

type listResponse struct {
	Data       []model.Document `json:"data"`
	Pagination query.Pagination `json:"pagination"`
}

func (h *Handler) handleList(res *resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req query.Request
		if err := h.decoder.Decode(&req, r.URL.Query()); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
			return
		}
		req.Collection = res.collection

		result, err := h.engine.Query(r.Context(), req)
		if err != nil {
			if errors.Is(err, model.ErrInvalidQuery) {
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
				return
			}
			writeInternalError(w, r, err, "Error occurred while retrieving "+res.collection+".")
			return
		}

		data := make([]model.Document, len(result.Items))
		for i, doc := range result.Items {
			data[i] = present(doc)
		}
		writeJSON(w, http.StatusOK, listResponse{Data: data, Pagination: result.Pagination})
	}
}

func (h *Handler) handleGet(res *resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, res)
		if !ok {
			return
		}
		doc, err := h.store.FindByID(r.Context(), res.collection, id)
		if err != nil {
			h.writeStorageError(w, r, res, err)
			return
		}
		writeJSON(w, http.StatusOK, present(doc))
	}
}

func (h *Handler) handleCreate(res *resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		e := res.newEntity()
		if err := json.Unmarshal(body, e); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body.")
			return
		}
		if err := e.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}

		doc, err := model.ToDocument(e)
		if err != nil {
			writeInternalError(w, r, err, "Error occurred while creating "+res.label+".")
			return
		}
		now := h.timestamp()
		doc.SetID(res.newID())
		doc["createdAt"] = now
		if res.stampUpdatedAt {
			doc["updatedAt"] = now
		}

		if err := h.store.Insert(r.Context(), res.collection, doc); err != nil {
			h.writeStorageError(w, r, res, err)
			return
		}

		h.logger.Info("Created document", "collection", res.collection, "id", doc.GetID())
		w.Header().Set("Location", "/api/v1/"+res.collection+"/"+doc.GetID())
		writeJSON(w, http.StatusCreated, present(doc))
	}
}

func (h *Handler) handleUpdate(res *resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, res)
		if !ok {
			return
		}
		body, ok := readBody(w, r)
		if !ok {
			return
		}

		set, err := res.update(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		if res.stampUpdatedAt {
			set["updatedAt"] = h.timestamp()
		}

		doc, err := h.store.FindByIDAndUpdate(r.Context(), res.collection, id, set)
		if err != nil {
			h.writeStorageError(w, r, res, err)
			return
		}
		writeJSON(w, http.StatusOK, present(doc))
	}
}

func (h *Handler) handleDelete(res *resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r, res)
		if !ok {
			return
		}
		doc, err := h.store.FindByIDAndDelete(r.Context(), res.collection, id)
		if err != nil {
			h.writeStorageError(w, r, res, err)
			return
		}
		h.logger.Info("Deleted document", "collection", res.collection, "id", id)
		writeJSON(w, http.StatusOK, present(doc))
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, res *resource) (string, bool) {
	id := r.PathValue("id")
	if id == "" || (res.objectIDs && !model.IsObjectIDHex(id)) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid id")
		return "", false
	}
	return id, true
}

func (h *Handler) writeStorageError(w http.ResponseWriter, r *http.Request, res *resource, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, res.label+" not found.")
	case errors.Is(err, model.ErrExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, res.conflict)
	case errors.Is(err, model.ErrInvalidQuery), isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		writeInternalError(w, r, err, "Internal storage error")
	}
}

// timestamp is the current time at the precision the store keeps.
func (h *Handler) timestamp() time.Time {
	return h.now().UTC().Truncate(time.Millisecond)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read request body")
		return nil, false
	}
	return body, true
}

// present renames the storage key _id to id.
func present(doc model.Document) model.Document {
	out := make(model.Document, len(doc))
	for k, v := range doc {
		if k == model.IDField {
			out["id"] = v
			continue
		}
		out[k] = v
	}
	return out
}
