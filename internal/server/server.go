// Package server implements an in-process File Share Service. It stages
// uploaded blocks, assembles committed block lists into artifacts and serves
// them for download and search. It is used by tests and by the serve
// command as a stand-in for the remote service.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/exchangesets/fsstransfer/internal/assembler"
	"github.com/exchangesets/fsstransfer/internal/debug"
	"github.com/exchangesets/fsstransfer/internal/errors"
	"github.com/exchangesets/fsstransfer/internal/fss"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Server is an http.Handler serving the File Share Service API.
type Server struct {
	asm     *assembler.Assembler
	cfg     Config
	batches *registry
	digests *lru.Cache[string, string]
	router  *mux.Router

	newID func() string
	now   func() time.Time
}

// New returns a server assembling files with asm.
func New(asm *assembler.Assembler, cfg Config) (*Server, error) {
	if cfg.DigestCacheSize <= 0 {
		cfg.DigestCacheSize = NewConfig().DigestCacheSize
	}
	if cfg.MaxBlockSize <= 0 {
		cfg.MaxBlockSize = NewConfig().MaxBlockSize
	}

	digests, err := lru.New[string, string](cfg.DigestCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "lru.New")
	}

	s := &Server{
		asm:     asm,
		cfg:     cfg,
		batches: newRegistry(),
		digests: digests,
		newID:   fss.NewCorrelationID,
		now:     time.Now,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	// file names may contain escaped slashes
	r.UseEncodedPath()
	r.Use(correlationMiddleware)

	r.HandleFunc("/batch", s.createBatch).Methods(http.MethodPost)
	r.HandleFunc("/batch", s.search).Methods(http.MethodGet)
	r.HandleFunc("/batch/{batchId}", s.commitBatch).Methods(http.MethodPut)
	r.HandleFunc("/batch/{batchId}/status", s.batchStatus).Methods(http.MethodGet)
	r.HandleFunc("/batch/{batchId}/files/{fileName}", s.addFile).Methods(http.MethodPost)
	r.HandleFunc("/batch/{batchId}/files/{fileName}", s.writeBlockList).Methods(http.MethodPut)
	r.HandleFunc("/batch/{batchId}/files/{fileName}", s.download).Methods(http.MethodGet)
	r.HandleFunc("/batch/{batchId}/files/{fileName}/{blockId}", s.putBlock).Methods(http.MethodPut)
	r.HandleFunc("/admin/sweep", s.sweep).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeServerError(w, r, http.StatusNotFound, "path", "no such endpoint")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeServerError(w, r, http.StatusMethodNotAllowed, "method", r.Method+" is not allowed")
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sweep removes stale block sets and returns their keys.
func (s *Server) Sweep() []string {
	return s.asm.Sweep()
}

// RunSweeper sweeps stale block sets every interval until ctx is cancelled.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// pathVars returns the unescaped route variables.
func pathVars(r *http.Request) (map[string]string, error) {
	vars := mux.Vars(r)
	res := make(map[string]string, len(vars))
	for k, v := range vars {
		u, err := url.PathUnescape(v)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %v", k)
		}
		res[k] = u
	}
	return res, nil
}

func (s *Server) vars(w http.ResponseWriter, r *http.Request) (map[string]string, bool) {
	vars, err := pathVars(r)
	if err != nil {
		writeServerError(w, r, http.StatusBadRequest, "path", err.Error())
		return nil, false
	}
	return vars, true
}

func (s *Server) createBatch(w http.ResponseWriter, r *http.Request) {
	var req fss.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeServerError(w, r, http.StatusBadRequest, "body", "invalid batch request: "+err.Error())
		return
	}

	id := s.newID()
	s.batches.create(id, req, s.now())
	debug.Log("created batch %v for %q", id, req.BusinessUnit)

	writeJSON(w, http.StatusCreated, fss.CreateBatchResponse{BatchID: id})
}

func (s *Server) addFile(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}

	var req fss.FileRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeServerError(w, r, http.StatusBadRequest, "body", "invalid file request: "+err.Error())
		return
	}

	var size *int64
	if h := r.Header.Get("X-Content-Size"); h != "" {
		n, err := strconv.ParseInt(h, 10, 64)
		if err != nil || n < 0 {
			writeServerError(w, r, http.StatusBadRequest, "X-Content-Size", "invalid content size "+h)
			return
		}
		size = &n
	}

	if !s.batches.addFile(vars["batchId"], vars["fileName"], r.Header.Get("X-MIME-Type"), size, req.Attributes) {
		writeServerError(w, r, http.StatusNotFound, "batchId", "Batch not found")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) putBlock(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}

	var digest []byte
	if h := r.Header.Get("Content-MD5"); h != "" {
		d, err := base64.StdEncoding.DecodeString(h)
		if err != nil || len(d) != 16 {
			writeServerError(w, r, http.StatusBadRequest, "Content-MD5", "invalid Content-MD5 header")
			return
		}
		digest = d
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.cfg.MaxBlockSize)))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeServerError(w, r, http.StatusRequestEntityTooLarge, "body",
				"block exceeds "+strconv.Itoa(s.cfg.MaxBlockSize)+" bytes")
			return
		}
		writeServerError(w, r, http.StatusBadRequest, "body", err.Error())
		return
	}

	err = s.asm.PutBlock(vars["batchId"], vars["fileName"], vars["blockId"], data, digest)
	if err != nil {
		writeServerError(w, r, http.StatusBadRequest, "blockId", err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// exampleBlockIDs is sent along with write-block-list validation failures.
var exampleBlockIDs = []string{"00001", "00002"}

func (s *Server) writeBlockList(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}
	batchID, fileName := vars["batchId"], vars["fileName"]

	var req fss.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeClientError(w, http.StatusBadRequest, "Invalid block list: "+err.Error(), exampleBlockIDs)
		return
	}

	art, err := s.asm.Commit(r.Context(), batchID, fileName, req.BlockIDs)
	switch {
	case err == nil:
	case errors.Is(err, assembler.ErrEmptyBlockList):
		writeClientError(w, http.StatusBadRequest, "Block list must not be empty", exampleBlockIDs)
		return
	case errors.IsKind(err, errors.ValidationFailed),
		errors.IsKind(err, errors.NoBlocksFound), errors.IsKind(err, errors.BlockNotFound):
		writeClientError(w, http.StatusBadRequest, err.Error(), exampleBlockIDs)
		return
	default:
		debug.Log("commit %v/%v failed: %+v", batchID, fileName, err)
		writeServerError(w, r, http.StatusInternalServerError, "fileName", "unable to store file")
		return
	}

	md5 := base64.StdEncoding.EncodeToString(art.MD5)
	s.digests.Add(assembler.BlockKey(batchID, fileName), md5)
	s.batches.fileCommitted(batchID, fileName, art.Size, md5)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commitBatch(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}

	if !s.batches.commit(vars["batchId"], s.now()) {
		writeServerError(w, r, http.StatusNotFound, "batchId", "Batch not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) batchStatus(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}

	status, ok := s.batches.status(vars["batchId"])
	if !ok {
		writeServerError(w, r, http.StatusNotFound, "batchId", "Batch not found")
		return
	}
	writeJSON(w, http.StatusOK, fss.BatchStatusResponse{BatchID: vars["batchId"], Status: status})
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	vars, ok := s.vars(w, r)
	if !ok {
		return
	}
	batchID, fileName := vars["batchId"], vars["fileName"]

	store := s.asm.Store()
	rd, size, err := store.Open(r.Context(), batchID, fileName)
	if err != nil {
		if store.IsNotExist(err) || errors.IsKind(err, errors.ValidationFailed) {
			writeServerError(w, r, http.StatusNotFound, "fileName", "File not found")
			return
		}
		debug.Log("open %v/%v failed: %+v", batchID, fileName, err)
		writeServerError(w, r, http.StatusInternalServerError, "fileName", "unable to read file")
		return
	}
	defer func() { _ = rd.Close() }()

	contentType := s.batches.mimeType(batchID, fileName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if md5, ok := s.digests.Get(assembler.BlockKey(batchID, fileName)); ok {
		w.Header().Set("Content-MD5", md5)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rd); err != nil {
		debug.Log("sending %v/%v failed: %v", batchID, fileName, err)
	}
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	filter := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			filter[k] = v[0]
		}
	}

	entries := s.batches.search(filter)
	writeJSON(w, http.StatusOK, fss.SearchResponse{
		Count:   len(entries),
		Total:   len(entries),
		Entries: entries,
	})
}

func (s *Server) sweep(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, fss.SweepResponse{Removed: s.Sweep()})
}
