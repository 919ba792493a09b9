package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// BackOfficeHandler forwards the item and slideshow form actions to the
// ERP backend.
type BackOfficeHandler struct {
	*Base
	gateway rpc.Gateway
	hub     *realtime.Hub
}

// NewBackOfficeHandler creates a back office handler. hub may be nil when
// ProcessSlideshow is not routed.
func NewBackOfficeHandler(gateway rpc.Gateway, hub *realtime.Hub) *BackOfficeHandler {
	return &BackOfficeHandler{
		Base:    &Base{},
		gateway: gateway,
		hub:     hub,
	}
}

// ProcessSlideshow handles POST /api/slideshows/process. Processing runs in
// the background: the backend streams image progress to the session while
// it works, and a done event closes the series once it returns.
func (h *BackOfficeHandler) ProcessSlideshow(w http.ResponseWriter, r *http.Request) {
	var req dto.ProcessSlideshowRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	if req.ItemCode == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("item_code is required"))
		return
	}
	sess, err := session.Resume(req.SessionID, req.Tag)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("session_id is required"))
		return
	}

	go h.processImages(context.WithoutCancel(r.Context()), sess, req.ItemCode)

	h.WriteJSON(w, http.StatusAccepted, dto.ProcessSlideshowResponse{
		ItemCode:  req.ItemCode,
		SessionID: sess.ID,
		Tag:       sess.Tag,
	})
}

// processImages runs one slideshow and publishes its done event. The
// gateway's own timeout bounds the call.
func (h *BackOfficeHandler) processImages(ctx context.Context, sess session.Session, itemCode string) {
	done := realtime.Done{Message: "Slideshow created"}
	result, err := rpc.ProcessNewImages.Invoke(ctx, h.gateway, rpc.ProcessNewImagesArgs{
		ItemCode:   itemCode,
		RealtimeID: sess.ID,
		Tag:        sess.Tag,
	})
	switch {
	case err != nil:
		done.Message = "Slideshow failed: " + err.Error()
	case !result.Success:
		done.Message = "Slideshow failed"
	}

	ev, err := realtime.NewEvent(sess, realtime.EventDone, done)
	if err != nil {
		return
	}
	// A closed hub only means nobody is listening any more
	_ = h.hub.Publish(ev)
}

// SaveSlideshow handles POST /api/slideshows/save and returns the saved
// document as the backend sends it.
func (h *BackOfficeHandler) SaveSlideshow(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveSlideshowRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	if len(req.Doc) == 0 || string(req.Doc) == "null" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("doc is required"))
		return
	}

	saved, err := rpc.SaveWithRotations.Invoke(r.Context(), h.gateway, rpc.SaveWithRotationsArgs{Doc: req.Doc})
	if err != nil {
		h.writeRemoteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, saved)
}

// Platforms handles GET /api/items/{code}/platforms.
func (h *BackOfficeHandler) Platforms(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("item code is required"))
		return
	}

	platforms, err := rpc.ItemPlatformAsync.Invoke(r.Context(), h.gateway, rpc.ItemPlatformArgs{ItemCode: code})
	if err != nil {
		h.writeRemoteError(w, err)
		return
	}
	if platforms == nil {
		platforms = []rpc.OnlineSellingItem{}
	}
	h.WriteJSON(w, http.StatusOK, dto.PlatformsResponse{ItemCode: code, Platforms: platforms})
}

// Categories handles POST /api/categories. The cache check runs first so
// the form can warn when the options may be stale.
func (h *BackOfficeHandler) Categories(w http.ResponseWriter, r *http.Request) {
	var req dto.CategoriesRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	req.CategoryStack = normalizeStack(req.CategoryStack)

	versions, err := rpc.CheckCacheVersions.Invoke(r.Context(), h.gateway, struct{}{})
	if err != nil {
		h.writeRemoteError(w, err)
		return
	}

	levels, err := rpc.GetCategories.Invoke(r.Context(), h.gateway, rpc.GetCategoriesArgs{CategoryStack: req.CategoryStack})
	if err != nil {
		h.writeRemoteError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.CategoriesResponse{
		CacheCurrent: versions.Current(),
		Levels:       levels,
	})
}

// UpdateCategories handles POST /api/categories/update - the options below
// a level that has just changed.
func (h *BackOfficeHandler) UpdateCategories(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCategoriesRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	if req.CategoryLevel < 1 || req.CategoryLevel > len(req.CategoryStack) {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("category_level must be between 1 and 6"))
		return
	}

	options, err := rpc.UpdateCategories.Invoke(r.Context(), h.gateway, rpc.UpdateCategoriesArgs{
		CategoryLevel: req.CategoryLevel,
		CategoryStack: normalizeStack(req.CategoryStack),
	})
	if err != nil {
		h.writeRemoteError(w, err)
		return
	}
	if options == nil {
		options = []rpc.CategoryOption{}
	}
	h.WriteJSON(w, http.StatusOK, options)
}

// normalizeStack marks empty levels as unselected.
func normalizeStack(stack rpc.CategoryStack) rpc.CategoryStack {
	for i, v := range stack {
		if v == "" {
			stack[i] = "0"
		}
	}
	return stack
}

// writeRemoteError maps a failed backend call to a response.
func (h *BackOfficeHandler) writeRemoteError(w http.ResponseWriter, err error) {
	var rerr *rpc.RemoteError
	switch {
	case errors.Is(err, rpc.ErrPermission):
		h.WriteError(w, http.StatusForbidden, dto.UpstreamError(err.Error()))
	case errors.Is(err, rpc.ErrDoesNotExist):
		h.WriteError(w, http.StatusNotFound, dto.UpstreamError(err.Error()))
	case errors.Is(err, rpc.ErrValidation):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.UpstreamError(err.Error()))
	case errors.As(err, &rerr):
		h.WriteError(w, http.StatusBadGateway, dto.UpstreamError(err.Error()))
	default:
		h.WriteError(w, http.StatusBadGateway, dto.UpstreamError("backend unavailable"))
	}
}

// EventsHandler relays progress events from the backend to the dialogs
// listening on /ws.
type EventsHandler struct {
	*Base
	hub *realtime.Hub
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(hub *realtime.Hub) *EventsHandler {
	return &EventsHandler{
		Base: &Base{},
		hub:  hub,
	}
}

// eventPayloads returns a value to check each known event's payload
// against.
var eventPayloads = map[string]func() any{
	realtime.EventSetImageNumber:  func() any { return &realtime.ImageCount{} },
	realtime.EventNewImage:        func() any { return &realtime.NewImage{} },
	realtime.EventInvoiceProgress: func() any { return &realtime.InvoiceProgress{} },
	realtime.EventDone:            func() any { return &realtime.Done{} },
}

// Publish handles POST /api/events.
func (h *EventsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var req dto.PublishEventRequest
	if !h.ReadJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" || req.Tag == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("session_id and tag are required"))
		return
	}

	newPayload, ok := eventPayloads[req.Event]
	if !ok {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("unknown event: "+req.Event))
		return
	}
	if len(req.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(newPayload()); err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError("invalid "+req.Event+" payload"))
			return
		}
	} else if req.Event != realtime.EventDone {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(req.Event+" requires a payload"))
		return
	}

	ev := realtime.Event{
		SessionID: req.SessionID,
		Tag:       req.Tag,
		Name:      req.Event,
		Payload:   req.Payload,
	}
	if err := h.hub.Publish(ev); err != nil {
		h.WriteError(w, http.StatusServiceUnavailable, dto.NewAPIError(dto.ErrCodeInternalError, err.Error()))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
