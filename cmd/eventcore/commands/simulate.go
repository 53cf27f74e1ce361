package commands

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mosaicnetworks/eventcore/src/crypto/keys"
	"github.com/mosaicnetworks/eventcore/src/metrics"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/pipeline"
	"github.com/mosaicnetworks/eventcore/src/service"
	"github.com/mosaicnetworks/eventcore/src/simulation"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
)

//NewSimulateCmd returns the command that runs a simulated network through the
//intake pipeline
func NewSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Short:   "Run a simulated network",
		PreRunE: loadConfig,
		RunE:    simulate,
	}
	AddSimulateFlags(cmd)
	return cmd
}

/*******************************************************************************
* SIMULATE
*******************************************************************************/

func simulate(cmd *cobra.Command, args []string) error {
	conf := &_config.EventCore
	logger := conf.Logger()

	consensusConf, err := conf.ConsensusConfig()
	if err != nil {
		return err
	}

	//the key in the datadir, if any, is used by the first member
	var privs []*ecdsa.PrivateKey
	keyfile := keys.NewSimpleKeyfile(conf.Keyfile())
	if key, err := keyfile.ReadKey(); err == nil {
		logger.WithField("keyfile", conf.Keyfile()).Debug("Using private key")
		privs = append(privs, key)
	}

	network, err := simulation.NewNetwork(simulation.Config{
		Nodes:           conf.Nodes,
		Seed:            conf.Seed,
		TxsPerEvent:     conf.TxsPerEvent,
		LeadProbability: conf.LeadProbability,
		Lead:            conf.Lead,
		LagProbability:  conf.LagProbability,
		Lag:             conf.Lag,
		Keys:            privs,
		Consensus:       consensusConf,
	}, logger.WithField("component", "simulation"))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(conf.DataDir, 0700); err != nil {
		return err
	}
	jsonPeers := peers.NewJSONPeerSet(conf.DataDir)
	if err := jsonPeers.Write(network.Book().Peers); err != nil {
		return err
	}
	logger.WithField("path", jsonPeers.Path()).Debug("Wrote address book")

	var store snapshot.Store
	if conf.Store {
		store, err = snapshot.NewBadgerStore(conf.DatabaseDir, logger.WithField("component", "badger"))
		if err != nil {
			return err
		}
		defer store.Close()
	}

	var reader *sdkmetric.ManualReader
	registry := metrics.Nop()
	if conf.Metrics {
		reader = sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		defer provider.Shutdown(context.Background())

		registry, err = metrics.NewRegistry(provider)
		if err != nil {
			return err
		}
	}

	pconf := pipeline.DefaultConfig()
	pconf.Consensus = consensusConf
	pconf.Bootstrap = conf.Bootstrap
	pconf.Self = network.Book().Peers[0]
	pconf.Logger = logger.WithField("component", "pipeline")

	node := pipeline.NewNode(pconf, network.Book(), store, registry)
	if err := node.Init(); err != nil {
		return err
	}

	if conf.ServiceAddr != "" {
		svc := service.NewService(conf.ServiceAddr, node, network.Book(), store, logger.WithField("component", "service"))
		go svc.Serve()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Debug("Reacting to SIGINT")
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- node.Run(ctx)
	}()

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for r := range node.Rounds() {
			fmt.Printf("round %d: %d events, %d judges, window %s\n",
				r.Number, len(r.Events), len(r.Judges), r.Window)
		}
	}()

	for i := 0; i < conf.Events; i++ {
		e, err := network.Next()
		if err != nil {
			logger.WithError(err).Error("Creating event")
			break
		}
		if err := node.Submit(ctx, e); err != nil {
			logger.WithError(err).Error("Submitting event")
			break
		}
	}

	status, statusErr := node.Status(ctx)

	node.Shutdown()
	err = <-runErr
	<-printed

	if statusErr == nil {
		logger.WithFields(logrus.Fields{
			"events":             network.Created(),
			"last_decided_round": status.LastDecidedRound,
			"consensus_events":   status.NextOrder,
			"undetermined":       status.Undetermined,
			"buffered":           status.Buffered,
			"pending_round":      status.Window.PendingConsensusRound(),
			"ancient_threshold":  status.Window.AncientThreshold(),
		}).Info("Simulation done")
	}

	if reader != nil {
		if err := printMetrics(reader); err != nil {
			return err
		}
	}

	if err == pipeline.ErrHalted {
		return err
	}
	return nil
}

func printMetrics(reader *sdkmetric.ManualReader) error {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		return err
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			fmt.Printf("%s: %d\n", m.Name, total)
		}
	}
	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddSimulateFlags adds flags to the Simulate command
func AddSimulateFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.EventCore.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.EventCore.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")

	// Consensus
	cmd.Flags().String("ancient-mode", _config.EventCore.AncientMode, "birth-round or generation")
	cmd.Flags().Int64("rounds-non-ancient", _config.EventCore.RoundsNonAncient, "Number of decided rounds whose events are not ancient")
	cmd.Flags().Int64("min-trans-timestamp-incr-nanos", _config.EventCore.MinTransIncrement, "Nanoseconds between the consensus timestamps of two transactions")
	cmd.Flags().Int64("coin-round-freq", _config.EventCore.CoinRoundFreq, "Frequency of coin rounds")

	// Store
	cmd.Flags().Bool("store", _config.EventCore.Store, "Persist snapshots in badgerDB")
	cmd.Flags().String("db", _config.EventCore.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.EventCore.Bootstrap, "Resume from the latest snapshot")
	cmd.Flags().Bool("metrics", _config.EventCore.Metrics, "Collect and print metrics")
	cmd.Flags().StringP("service-listen", "s", _config.EventCore.ServiceAddr, "Listen IP:Port for HTTP service")

	// Simulation
	cmd.Flags().Int("nodes", _config.EventCore.Nodes, "Number of members")
	cmd.Flags().Int("events", _config.EventCore.Events, "Number of events to create")
	cmd.Flags().Int("txs-per-event", _config.EventCore.TxsPerEvent, "Transactions per event")
	cmd.Flags().Int64("seed", _config.EventCore.Seed, "Random seed")
	cmd.Flags().Float64("lead-probability", _config.EventCore.LeadProbability, "Probability that an event is born ahead of consensus")
	cmd.Flags().Int64("lead", _config.EventCore.Lead, "Rounds by which leading events are ahead")
	cmd.Flags().Float64("lag-probability", _config.EventCore.LagProbability, "Probability that an event is born behind consensus")
	cmd.Flags().Int64("lag", _config.EventCore.Lag, "Rounds by which lagging events are behind")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.EventCore.SetDataDir(_config.EventCore.DataDir)

	// Bootstrap forces Store
	if _config.EventCore.Bootstrap {
		_config.EventCore.Store = true
	}

	if _config.LogFile != "" {
		addFileHook(_config.EventCore.BaseLogger(), _config.LogFile)
	}

	logFields := logrus.Fields{
		"eventcore.DataDir":           _config.EventCore.DataDir,
		"eventcore.LogLevel":          _config.EventCore.LogLevel,
		"eventcore.AncientMode":       _config.EventCore.AncientMode,
		"eventcore.RoundsNonAncient":  _config.EventCore.RoundsNonAncient,
		"eventcore.MinTransIncrement": _config.EventCore.MinTransIncrement,
		"eventcore.CoinRoundFreq":     _config.EventCore.CoinRoundFreq,
		"eventcore.Store":             _config.EventCore.Store,
		"eventcore.Metrics":           _config.EventCore.Metrics,
		"eventcore.ServiceAddr":       _config.EventCore.ServiceAddr,
		"eventcore.Nodes":             _config.EventCore.Nodes,
		"eventcore.Events":            _config.EventCore.Events,
		"eventcore.TxsPerEvent":       _config.EventCore.TxsPerEvent,
		"eventcore.Seed":              _config.EventCore.Seed,
		"eventcore.LeadProbability":   _config.EventCore.LeadProbability,
		"eventcore.Lead":              _config.EventCore.Lead,
		"eventcore.LagProbability":    _config.EventCore.LagProbability,
		"eventcore.Lag":               _config.EventCore.Lag,
		"LogFile":                     _config.LogFile,
	}

	if _config.EventCore.Store {
		logFields["eventcore.DatabaseDir"] = _config.EventCore.DatabaseDir
		logFields["eventcore.Bootstrap"] = _config.EventCore.Bootstrap
	}

	_config.EventCore.Logger().WithFields(logFields).Debug("SIMULATE")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/eventcore.toml (.json, .yaml also work)
	viper.SetConfigName("eventcore")               // name of config file (without extension)
	viper.AddConfigPath(_config.EventCore.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.EventCore.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.EventCore.Logger().Debugf("No config file found in: %s", _config.EventCore.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

//addFileHook copies every log entry at or above the logger's level to path
func addFileHook(logger *logrus.Logger, path string) {
	pathMap := lfshook.PathMap{}
	for _, level := range logrus.AllLevels {
		if level <= logger.Level {
			pathMap[level] = path
		}
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
