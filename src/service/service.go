package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/pipeline"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
)

// Service exposes the status of a pipeline Node over HTTP.
type Service struct {
	deadlock.Mutex

	bindAddress string
	node        *pipeline.Node
	book        *peers.PeerSet
	store       snapshot.Store
	router      *mux.Router
	logger      *logrus.Entry
}

// NewService ... The store may be nil.
func NewService(bindAddress string, n *pipeline.Node, book *peers.PeerSet, store snapshot.Store, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		book:        book,
		store:       store,
		router:      mux.NewRouter(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.router.HandleFunc("/stats", s.makeHandler(s.GetStats)).Methods("GET")
	s.router.HandleFunc("/snapshot/{round}", s.makeHandler(s.GetSnapshot)).Methods("GET")
	s.router.HandleFunc("/peers", s.makeHandler(s.GetPeers)).Methods("GET")
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call. Requests are logged in
// combined log format at Debug level.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	accessLog := s.logger.Logger.WriterLevel(logrus.DebugLevel)
	defer accessLog.Close()

	server := &http.Server{
		Addr:           s.bindAddress,
		Handler:        handlers.CombinedLoggingHandler(accessLog, s.router),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	err := server.ListenAndServe()
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	status, err := s.node.Status(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Retrieving status")

		http.Error(w, err.Error(), http.StatusServiceUnavailable)

		return
	}

	stats := map[string]string{
		"state":              status.State.String(),
		"ancient_mode":       status.Window.Mode().String(),
		"ancient_threshold":  strconv.FormatInt(status.Window.AncientThreshold(), 10),
		"pending_round":      strconv.FormatInt(status.Window.PendingConsensusRound(), 10),
		"last_decided_round": strconv.FormatInt(status.LastDecidedRound, 10),
		"consensus_events":   strconv.FormatInt(status.NextOrder, 10),
		"undetermined":       strconv.Itoa(status.Undetermined),
		"buffered":           strconv.Itoa(status.Buffered),
		"peers":              strconv.Itoa(s.book.Len()),
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetSnapshot serves /snapshot/latest and /snapshot/{round}.
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no snapshot store", http.StatusNotFound)
		return
	}

	param := mux.Vars(r)["round"]

	var snap *snapshot.Snapshot
	var err error
	if param == "latest" {
		snap, err = s.store.Latest()
	} else {
		var round int64
		round, err = strconv.ParseInt(param, 10, 64)
		if err != nil {
			s.logger.WithError(err).Errorf("Parsing round parameter %s", param)

			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}
		snap, err = s.store.Get(round)
	}

	if err != nil {
		status := http.StatusInternalServerError
		if common.IsStore(err, common.KeyNotFound) {
			status = http.StatusNotFound
		}

		s.logger.WithError(err).Errorf("Retrieving snapshot %s", param)

		http.Error(w, err.Error(), status)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(snap)
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(s.book.Peers)
}
