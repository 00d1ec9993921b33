package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/manash/pixshop/internal/cost"
	"github.com/manash/pixshop/internal/image"
	"github.com/manash/pixshop/internal/imaging"
	"github.com/manash/pixshop/internal/provider"
	"github.com/manash/pixshop/internal/session"
	"github.com/manash/pixshop/pkg/models"
)

var errNoEditor = errors.New("AI editing is not configured: set an API key")

type entryView struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
	Current  bool   `json:"current"`
}

type sessionView struct {
	Count   int         `json:"count"`
	Cursor  int         `json:"cursor"`
	CanUndo bool        `json:"canUndo"`
	CanRedo bool        `json:"canRedo"`
	Entries []entryView `json:"entries"`
	// Warning carries a persistence failure; the change itself was applied.
	Warning string `json:"warning,omitempty"`
}

type editRequest struct {
	Operation string `json:"operation"`
	Prompt    string `json:"prompt"`
	X         *int   `json:"x,omitempty"`
	Y         *int   `json:"y,omitempty"`
	// DisplayWidth and DisplayHeight give the size the image was shown at
	// when x and y were picked. Zero means x and y are native pixels.
	DisplayWidth  int `json:"displayWidth,omitempty"`
	DisplayHeight int `json:"displayHeight,omitempty"`
	// Style is a data URL, used by the style operation.
	Style string `json:"style,omitempty"`
}

type cropRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type rotateRequest struct {
	Degrees int `json:"degrees"`
}

type costView struct {
	Total    float64       `json:"total"`
	Currency string        `json:"currency"`
	Calls    []cost.Charge `json:"calls"`
}

func (s *Server) view() sessionView {
	snap := s.mgr.Snapshot()
	v := sessionView{
		Count:   len(snap.Entries),
		Cursor:  snap.Cursor,
		CanUndo: s.mgr.CanUndo(),
		CanRedo: s.mgr.CanRedo(),
		Entries: make([]entryView, 0, len(snap.Entries)),
	}
	for i, a := range snap.Entries {
		v.Entries = append(v.Entries, entryView{
			Index:    i,
			Name:     a.Name(),
			MimeType: a.MimeType(),
			Size:     a.Size(),
			Current:  i == snap.Cursor,
		})
	}
	return v
}

// respondMutation reports the session after a change. A persistence failure
// does not undo the change, so it is surfaced as a warning on a 200.
func (s *Server) respondMutation(w http.ResponseWriter, err error) {
	if err != nil && !errors.Is(err, session.ErrPersist) {
		respondErr(w, err)
		return
	}
	v := s.view()
	if err != nil {
		log.Warn().Err(err).Msg("session change not saved")
		v.Warning = err.Error()
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleCurrent(w http.ResponseWriter, _ *http.Request) {
	a, ok := s.mgr.Current()
	if !ok {
		respondError(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}
	respondArtifact(w, a)
}

func (s *Server) handleOriginal(w http.ResponseWriter, _ *http.Request) {
	a, ok := s.mgr.Original()
	if !ok {
		respondError(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}
	respondArtifact(w, a)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, image.MaxImageBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(data) > image.MaxImageBytes {
		respondError(w, http.StatusRequestEntityTooLarge, image.ErrTooLarge.Error())
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusBadRequest, models.ErrNoImageData.Error())
		return
	}

	mime := models.DetectMimeType(data)
	if !models.IsImageMimeType(mime) {
		respondError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("%s: %s", image.ErrNotAnImage, mime))
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload." + models.ExtensionFor(mime)
	}
	a, err := models.NewArtifact(name, mime, data)
	if err != nil {
		respondErr(w, err)
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()
	s.respondMutation(w, s.mgr.StartNew(r.Context(), a))
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		respondError(w, http.StatusPreconditionRequired, "undo must be confirmed with ?confirm=true")
		return
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()
	_, err := s.mgr.Undo(r.Context())
	s.respondMutation(w, err)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		respondError(w, http.StatusPreconditionRequired, "redo must be confirmed with ?confirm=true")
		return
	}
	s.editMu.Lock()
	defer s.editMu.Unlock()
	_, err := s.mgr.Redo(r.Context())
	s.respondMutation(w, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	_, err := s.mgr.ResetToOriginal(r.Context())
	s.respondMutation(w, err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.editMu.Lock()
	defer s.editMu.Unlock()
	if err := s.mgr.Clear(r.Context()); err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.view())
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	if s.editor == nil {
		respondError(w, http.StatusServiceUnavailable, errNoEditor.Error())
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	op, err := models.ParseOperation(req.Operation)
	if err != nil {
		respondErr(w, err)
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	preq := provider.Request{Operation: op, Prompt: req.Prompt}
	if op != models.OpGenerateFromText {
		cur, ok := s.mgr.Current()
		if !ok {
			respondErr(w, session.ErrNoSession)
			return
		}
		preq.Image = cur
	}
	if req.X != nil && req.Y != nil {
		spot := models.Hotspot{X: *req.X, Y: *req.Y}
		if req.DisplayWidth > 0 || req.DisplayHeight > 0 {
			if spot, err = scaleToNative(preq.Image, spot, req.DisplayWidth, req.DisplayHeight); err != nil {
				respondErr(w, err)
				return
			}
		}
		if op == models.OpRetouch {
			if err := imaging.CheckHotspot(preq.Image, spot); err != nil {
				respondErr(w, err)
				return
			}
		}
		preq.Hotspot = &spot
	}
	if op == models.OpStyleTransfer {
		style, err := models.ArtifactFromDataURL("style", req.Style)
		if err != nil {
			respondError(w, http.StatusBadRequest, "style requires a style image as a data URL")
			return
		}
		preq.Style = style
	}

	result, err := provider.Apply(r.Context(), s.editor, preq)
	if err != nil {
		log.Warn().Err(err).Str("operation", op.String()).Msg("edit failed")
		respondErr(w, err)
		return
	}
	s.ledger.Record(op)

	if op == models.OpGenerateFromText {
		s.respondMutation(w, s.mgr.StartNew(r.Context(), result))
		return
	}
	s.respondMutation(w, s.mgr.Append(r.Context(), result))
}

func scaleToNative(a *models.Artifact, spot models.Hotspot, displayW, displayH int) (models.Hotspot, error) {
	if a == nil {
		return spot, models.ErrNoImageData
	}
	w, h, err := imaging.Dimensions(a)
	if err != nil {
		return spot, err
	}
	return imaging.ScaleHotspot(spot.X, spot.Y, displayW, displayH, w, h)
}

func (s *Server) handleCrop(w http.ResponseWriter, r *http.Request) {
	var req cropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	cur, ok := s.mgr.Current()
	if !ok {
		respondErr(w, session.ErrNoSession)
		return
	}
	out, err := imaging.Crop(cur, imaging.Rect{X: req.X, Y: req.Y, Width: req.Width, Height: req.Height})
	if err != nil {
		respondErr(w, err)
		return
	}
	s.respondMutation(w, s.mgr.Append(r.Context(), out))
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.editMu.Lock()
	defer s.editMu.Unlock()

	cur, ok := s.mgr.Current()
	if !ok {
		respondErr(w, session.ErrNoSession)
		return
	}
	out, err := imaging.Rotate(cur, req.Degrees)
	if err != nil {
		respondErr(w, err)
		return
	}
	s.respondMutation(w, s.mgr.Append(r.Context(), out))
}

// handleModel3D returns an OBJ mesh of the current image. History is not
// changed.
func (s *Server) handleModel3D(w http.ResponseWriter, r *http.Request) {
	if s.editor == nil {
		respondError(w, http.StatusServiceUnavailable, errNoEditor.Error())
		return
	}

	s.editMu.Lock()
	cur, ok := s.mgr.Current()
	s.editMu.Unlock()
	if !ok {
		respondErr(w, session.ErrNoSession)
		return
	}

	mesh, err := s.editor.Generate3DModel(r.Context(), cur)
	if err != nil {
		respondErr(w, err)
		return
	}
	s.ledger.RecordMesh(mesh)

	w.Header().Set("Content-Type", "model/obj")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", mesh.Name))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, mesh.Content+"\n")
}

func (s *Server) handleCost(w http.ResponseWriter, _ *http.Request) {
	total := s.ledger.Total()
	calls := s.ledger.Charges()
	if calls == nil {
		calls = []cost.Charge{}
	}
	respondJSON(w, http.StatusOK, costView{Total: total.Total, Currency: total.Currency, Calls: calls})
}
