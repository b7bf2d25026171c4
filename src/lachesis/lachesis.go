package lachesis

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/Fantom-foundation/go-lachesis/src/config"
	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
	"github.com/Fantom-foundation/go-lachesis/src/net"
	"github.com/Fantom-foundation/go-lachesis/src/node"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
	"github.com/Fantom-foundation/go-lachesis/src/poset"
	"github.com/Fantom-foundation/go-lachesis/src/service"
)

// Lachesis is a struct containing the key parts of a lachesis node.
type Lachesis struct {
	Config    *config.Config
	Key       *ecdsa.PrivateKey
	Node      *node.Node
	Transport net.Transport
	Store     poset.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	logger *logrus.Entry
}

// NewLachesis is a factory method that returns an unstarted Lachesis object
// with a configuration object.
func NewLachesis(conf *config.Config) *Lachesis {
	return &Lachesis{
		Config: conf,
		logger: conf.Logger(),
	}
}

// Init initializes the lachesis engine based on the provided configuration:
// it loads the signing key and the genesis peer set, opens the store, binds
// the transport, and instantiates the node and the API service.
func (l *Lachesis) Init() error {
	if err := l.initKey(); err != nil {
		return err
	}
	if err := l.initPeers(); err != nil {
		return err
	}
	if err := l.initStore(); err != nil {
		return err
	}
	if err := l.initTransport(); err != nil {
		return err
	}
	if err := l.initNode(); err != nil {
		return err
	}
	return l.initService()
}

// Run starts the node and, if enabled, the API service. It does not return
// until the node shuts down.
func (l *Lachesis) Run() {
	if l.Service != nil {
		go l.Service.Serve()
	}
	l.Node.Run(true)
}

func (l *Lachesis) initKey() error {
	simpleKeyfile := keys.NewSimpleKeyfile(l.Config.Keyfile())
	key, err := simpleKeyfile.ReadKey()
	if err != nil {
		return fmt.Errorf("reading keyfile %s: %v", l.Config.Keyfile(), err)
	}
	l.Key = key
	return nil
}

func (l *Lachesis) initPeers() error {
	jsonPeerSet := peers.NewJSONPeerSet(l.Config.DataDir)
	peerSet, err := jsonPeerSet.PeerSet()
	if err != nil {
		return fmt.Errorf("reading peers.json: %v", err)
	}

	l.logger.WithField("peers", peerSet.Len()).Debug("Loaded peer set")
	l.Peers = peerSet

	return nil
}

func (l *Lachesis) initStore() error {
	if !l.Config.Store {
		l.logger.Debug("Creating InmemStore")
		l.Store = poset.NewInmemStore(l.Peers, l.Config.CacheSize)
		return nil
	}

	dbDir := l.Config.BadgerDir()
	l.logger.WithField("path", dbDir).Debug("Creating BadgerStore")

	if l.Config.Bootstrap {
		if _, err := os.Stat(dbDir); err != nil {
			return fmt.Errorf("bootstrap requested but no database at %s", dbDir)
		}
		store, err := poset.LoadBadgerStore(l.Config.CacheSize, dbDir)
		if err != nil {
			return err
		}
		l.Store = store
		return nil
	}

	//a stale database would clash with the new run's genesis
	if _, err := os.Stat(dbDir); err == nil {
		if err := os.RemoveAll(dbDir); err != nil {
			return err
		}
	}

	store, err := poset.NewBadgerStore(l.Peers, l.Config.CacheSize, dbDir)
	if err != nil {
		return err
	}
	l.Store = store
	return nil
}

func (l *Lachesis) initTransport() error {
	trans, err := net.NewTCPTransport(
		l.Config.BindAddr,
		l.Config.AdvertiseAddr,
		l.Config.MaxPool,
		l.Config.TCPTimeout,
		l.logger)
	if err != nil {
		return err
	}
	l.Transport = trans
	return nil
}

func (l *Lachesis) initNode() error {
	validator := node.NewValidator(l.Key, l.Config.Moniker)

	if _, ok := l.Peers.ByID[validator.ID()]; !ok {
		return fmt.Errorf("validator %d is not in the peer set", validator.ID())
	}

	l.logger.WithFields(logrus.Fields{
		"id":      validator.ID(),
		"moniker": validator.Moniker,
	}).Debug("Validator")

	l.Node = node.NewNode(
		l.Config,
		validator,
		l.Peers,
		l.Store,
		l.Transport,
	)

	return l.Node.Init()
}

func (l *Lachesis) initService() error {
	if l.Config.NoService {
		return nil
	}
	l.Service = service.NewService(l.Config.ServiceAddr, l.Node, l.logger)
	return nil
}
