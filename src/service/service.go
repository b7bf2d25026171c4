package service

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/Fantom-foundation/go-lachesis/src/node"
	"github.com/Fantom-foundation/go-lachesis/src/poset"
)

// Service is the HTTP API of a running node: transaction submission, reads
// from the committed log, and operational introspection.
type Service struct {
	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService creates a Service.
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	return &Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}
}

// Serve registers the API handlers and starts listening. It blocks until
// the listener fails or is closed.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	mux := http.NewServeMux()
	mux.HandleFunc("/submit", s.Submit)
	mux.HandleFunc("/order", s.Order)
	mux.HandleFunc("/stats", s.Stats)
	mux.HandleFunc("/peers", s.Peers)
	mux.HandleFunc("/forks", s.Forks)

	if err := http.ListenAndServe(s.bindAddress, mux); err != nil {
		s.logger.WithError(err).Error("API listener failed")
	}
}

// Submit accepts a raw transaction in the request body and adds it to the
// node's pool. The transaction is opaque bytes; ordering is the engine's
// only concern.
func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tx, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(tx) == 0 {
		http.Error(w, "empty transaction", http.StatusBadRequest)
		return
	}

	s.node.Submit(tx)

	w.WriteHeader(http.StatusAccepted)
}

type orderedTxJSON struct {
	Index              int    `json:"index"`
	Payload            []byte `json:"payload"`
	ConsensusTimestamp string `json:"consensus_timestamp"`
	RoundReceived      int    `json:"round_received"`
	Event              string `json:"event"`
	Creator            string `json:"creator"`
}

// Order returns the committed transaction log starting from the index given
// by the "from" query parameter (default 0).
func (s *Service) Order(w http.ResponseWriter, r *http.Request) {
	from := 0
	if f := r.URL.Query().Get("from"); f != "" {
		parsed, err := strconv.Atoi(f)
		if err != nil {
			http.Error(w, "invalid from parameter", http.StatusBadRequest)
			return
		}
		from = parsed
	}

	txs := s.node.GetOrderedTransactions(from)
	out := make([]orderedTxJSON, len(txs))
	for i, tx := range txs {
		out[i] = orderedTxJSON{
			Index:              from + i,
			Payload:            tx.Payload,
			ConsensusTimestamp: tx.ConsensusTimestamp.String(),
			RoundReceived:      tx.RoundReceived,
			Event:              tx.Event,
			Creator:            tx.Creator,
		}
	}

	writeJSON(w, s.logger, out)
}

// Stats returns operational statistics.
func (s *Service) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.node.GetStats())
}

// Peers returns the participant set.
func (s *Service) Peers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, s.node.GetPeers().Peers)
}

type forksJSON struct {
	Suspects []uint32      `json:"suspects"`
	Forks    []*poset.Fork `json:"forks"`
}

// Forks returns the recorded equivocation evidence and the list of suspect
// creators. With a creator query parameter it returns the fork status of
// that creator only.
func (s *Service) Forks(w http.ResponseWriter, r *http.Request) {
	if c := r.URL.Query().Get("creator"); c != "" {
		creator, err := strconv.ParseUint(c, 10, 32)
		if err != nil {
			http.Error(w, "invalid creator ID", http.StatusBadRequest)
			return
		}
		writeJSON(w, s.logger, s.node.ForkStatus(uint32(creator)))
		return
	}

	writeJSON(w, s.logger, forksJSON{
		Suspects: s.node.GetSuspects(),
		Forks:    s.node.GetForks(),
	})
}

func writeJSON(w http.ResponseWriter, logger *logrus.Entry, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Encoding JSON response")
	}
}
