// Package web serves the JSON API for starting runs, answering their human
// reviews over HTTP and following their progress as a Server-Sent Events
// stream.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lucasnoah/sdlcfactory/internal/human"
	"github.com/lucasnoah/sdlcfactory/internal/logging"
	"github.com/lucasnoah/sdlcfactory/internal/orchestrator"
	"github.com/lucasnoah/sdlcfactory/internal/pipeline"
)

// EventReviewRequested is streamed when a run starts waiting for a verdict.
const EventReviewRequested = "review_requested"

// RunFunc executes one stored run to completion using reviewer for the human
// stages and reporting progress to observe.
type RunFunc func(ctx context.Context, runID string, reviewer human.Reviewer, observe orchestrator.Observer) (pipeline.State, error)

// Options configures a Server.
type Options struct {
	Store  *pipeline.Store
	Run    RunFunc
	Logger *logging.Logger
}

// liveRun is a run executing in this process.
type liveRun struct {
	id      string
	channel *human.Channel
	cancel  context.CancelFunc
	hub     *hub
	done    chan struct{}
}

// Server is the HTTP front end. Each run gets its own review channel and
// event hub; nothing is shared between runs.
type Server struct {
	store    *pipeline.Store
	run      RunFunc
	log      *logging.Logger
	validate *validator.Validate

	baseCtx context.Context
	stop    context.CancelFunc

	mu   sync.Mutex
	runs map[string]*liveRun
	wg   sync.WaitGroup
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		store:    opts.Store,
		run:      opts.Run,
		log:      log,
		validate: validator.New(),
		baseCtx:  ctx,
		stop:     stop,
		runs:     make(map[string]*liveRun),
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/runs/{id}/verdict", s.handleVerdict)
	mux.HandleFunc("GET /api/runs/{id}/events", s.handleEvents)
	mux.HandleFunc("POST /api/runs/{id}/abort", s.handleAbort)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// ListenAndServe serves on addr until ctx ends, then aborts live runs and
// shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		s.Shutdown()
		return err
	case <-ctx.Done():
	}
	s.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Shutdown aborts every live run and waits for them to stop.
func (s *Server) Shutdown() {
	s.stop()
	s.mu.Lock()
	for _, lr := range s.runs {
		lr.channel.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every run started so far has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// startRun creates the run record and executes it in the background.
func (s *Server) startRun(requirements string, autoApprove bool) (*pipeline.RunRecord, error) {
	if s.run == nil {
		return nil, errors.New("server has no run function")
	}
	rec, err := s.store.Create("", requirements)
	if err != nil {
		return nil, err
	}

	ch := human.NewChannel(requirements)
	var reviewer human.Reviewer = ch
	if autoApprove {
		reviewer = human.AutoApprove{Text: requirements}
	}
	ctx, cancel := context.WithCancel(s.baseCtx)
	lr := &liveRun{id: rec.ID, channel: ch, cancel: cancel, hub: newHub(), done: make(chan struct{})}

	ch.OnReview(func(req human.Request) {
		_ = s.store.Update(rec.ID, func(r *pipeline.RunRecord) {
			r.Status = pipeline.StatusAwaitingReview
		})
		lr.hub.publish(orchestrator.Event{
			RunID:  rec.ID,
			Type:   EventReviewRequested,
			Stage:  req.Stage,
			Detail: req.Title,
			Time:   time.Now().UTC(),
		})
	})

	s.mu.Lock()
	s.runs[rec.ID] = lr
	s.mu.Unlock()

	log := s.log.WithRun(rec.ID)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(lr.done)
		defer lr.hub.close()
		defer cancel()
		defer s.forget(rec.ID)

		if _, err := s.run(ctx, rec.ID, reviewer, lr.hub.publish); err != nil {
			log.Warn("run ended with error", "error", err)
			return
		}
		log.Info("run finished")
	}()
	return rec, nil
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.runs, id)
	s.mu.Unlock()
}

func (s *Server) live(id string) (*liveRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lr, ok := s.runs[id]
	return lr, ok
}
