package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/attendsync/attendsync/internal/evidence"
	"github.com/attendsync/attendsync/internal/gist"
	"github.com/attendsync/attendsync/internal/reconcile"
	"github.com/attendsync/attendsync/internal/schema"
	"github.com/attendsync/attendsync/internal/store"
)

// maxUpload caps a multipart evidence upload.
const maxUpload = 32 << 20

// Sync is the part of the reconcile driver the API drives.
// *reconcile.Driver satisfies it.
type Sync interface {
	Status() reconcile.Status
	Push(ctx context.Context) (gist.Result, error)
	Load(ctx context.Context) error
	Reconfigure(ctx context.Context, cfg schema.SyncConfig) error
	Subscribe() (<-chan reconcile.Status, func())
}

// API implements the /api routes.
type API struct {
	Session *evidence.Session

	// Sync may be nil, in which case sync routes answer 503.
	Sync Sync

	Logger *log.Logger

	notify func(Message)
}

var defaultAPILogger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)

func (a *API) logger() *log.Logger {
	if a.Logger == nil {
		return defaultAPILogger
	}
	return a.Logger
}

func (a *API) publish(typ MessageType, data any) {
	if a.notify == nil {
		return
	}
	msg, err := NewMessage(typ, data)
	if err != nil {
		a.logger().Printf("%v", err)
		return
	}
	a.notify(msg)
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Use(middleware.Recoverer)
	r.Use(noStore)

	r.Get("/workers", a.handleListWorkers)
	r.Post("/workers", a.handleAddWorker)
	r.Put("/workers/{id}", a.handleUpdateWorker)

	r.Get("/evidence", a.handleListEvidence)
	r.Get("/evidence/{id}", a.handleGetEvidence)
	r.Post("/evidence", a.handleRecordEvidence)

	r.Get("/config", a.handleGetConfig)
	r.Put("/config", a.handlePutConfig)

	r.Post("/sync/push", a.handlePush)
	r.Post("/sync/pull", a.handlePull)
	r.Get("/status", a.handleStatus)
}

// noStore keeps API responses out of browser and proxy caches.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

func (a *API) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := a.Session.Store.Workers(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workers)
}

type workerRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EmployeeID string `json:"dni"`
}

func (a *API) handleAddWorker(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	worker, err := evidence.AddWorker(r.Context(), a.Session, req.Name, req.EmployeeID, req.ID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.publish(MessageTypeWorker, worker)
	writeJSON(w, http.StatusCreated, worker)
}

func (a *API) handleUpdateWorker(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, err)
		return
	}
	worker, err := evidence.UpdateWorker(r.Context(), a.Session, chi.URLParam(r, "id"), req.Name, req.EmployeeID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.publish(MessageTypeWorker, worker)
	writeJSON(w, http.StatusOK, worker)
}

// handleListEvidence lists records, optionally filtered by worker and date.
// Images are left out unless images=true.
func (a *API) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	recs, err := a.Session.Store.EvidenceRecords(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}

	q := r.URL.Query()
	worker, date := q.Get("worker"), q.Get("date")
	withImages := q.Get("images") == "true"

	out := make([]schema.EvidenceRecord, 0, len(recs))
	for _, rec := range recs {
		if worker != "" && rec.WorkerID != worker {
			continue
		}
		if date != "" && rec.Date != date {
			continue
		}
		if !withImages {
			rec = withoutImages(rec)
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func withoutImages(rec schema.EvidenceRecord) schema.EvidenceRecord {
	strip := func(s *schema.Slot) *schema.Slot {
		if s == nil {
			return nil
		}
		c := *s
		c.Image = ""
		return &c
	}
	rec.CheckIn = strip(rec.CheckIn)
	rec.CheckOut = strip(rec.CheckOut)
	return rec
}

func (a *API) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	rec, err := a.Session.Store.GetEvidence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecordEvidence accepts a multipart form with fields worker, date,
// kind and the file field image.
func (a *API) handleRecordEvidence(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		a.writeError(w, fmt.Errorf("%w: %v", schema.ErrValidation, err))
		return
	}

	kind, err := schema.ParseEventKind(r.FormValue("kind"))
	if err != nil {
		a.writeError(w, err)
		return
	}

	var img []byte
	if f, _, err := r.FormFile("image"); err == nil {
		img, err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			a.writeError(w, fmt.Errorf("%w: %v", schema.ErrInvalidImage, err))
			return
		}
	}

	rec, err := evidence.RecordEvidence(r.Context(), a.Session, evidence.Request{
		WorkerID: r.FormValue("worker"),
		Date:     r.FormValue("date"),
		Kind:     kind,
		Image:    img,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.publish(MessageTypeEvidence, withoutImages(*rec))
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Session.Store.SyncConfig(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (a *API) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg schema.SyncConfig
	if err := decodeJSON(r, &cfg); err != nil {
		a.writeError(w, err)
		return
	}
	if a.Sync != nil {
		err := a.Sync.Reconfigure(r.Context(), cfg)
		if err != nil {
			a.writeError(w, err)
			return
		}
	} else if err := a.Session.Store.SaveSyncConfig(r.Context(), cfg); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

func (a *API) handlePush(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "sync is not running"})
		return
	}
	res, err := a.Sync.Push(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handlePull(w http.ResponseWriter, r *http.Request) {
	if a.Sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "sync is not running"})
		return
	}
	if err := a.Sync.Load(r.Context()); err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Sync.Status())
}

type statusBody struct {
	Sync  *reconcile.Status `json:"sync,omitempty"`
	Store store.Stats       `json:"store"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Session.Store.Stats(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	body := statusBody{Store: stats}
	if a.Sync != nil {
		s := a.Sync.Status()
		body.Sync = &s
	}
	writeJSON(w, http.StatusOK, body)
}

type errorBody struct {
	Error string `json:"error"`
}

// StatusCode maps an error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, schema.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrUnknownWorker), errors.Is(err, schema.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrRemoteNotFound),
		errors.Is(err, schema.ErrRemoteSyncFailed),
		errors.Is(err, schema.ErrRemoteTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= 500 {
		a.logger().Printf("Request failed: %v", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", schema.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
