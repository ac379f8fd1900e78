package commands

import (
	"github.com/safenetwork/safenode/src/safenode"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a safenode
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runSafenode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runSafenode(cmd *cobra.Command, args []string) error {
	engine := safenode.NewSafeNode(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize engine")
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "File receiving a copy of the info and higher level logs")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.ListenAddr, "Listen multiaddr for the node")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Duration("bootstrap-timeout", _config.BootstrapTimeout, "Timeout of the startup dials and lookup")

	// Kademlia
	cmd.Flags().Int("replication-factor", _config.ReplicationFactor, "Bucket size and number of closest peers")
	cmd.Flags().Int("alpha", _config.Alpha, "Number of concurrent RPCs of a query")
	cmd.Flags().Duration("query-timeout", _config.QueryTimeout, "Timeout of a Kademlia query")
	cmd.Flags().Duration("request-timeout", _config.RequestTimeout, "Timeout of an application request")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of records in the LRU cache")
	cmd.Flags().Int("max-records", _config.MaxRecords, "Max number of records held by the node")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":           _config.DataDir,
		"ListenAddr":        _config.ListenAddr,
		"ServiceAddr":       _config.ServiceAddr,
		"NoService":         _config.NoService,
		"MaxPool":           _config.MaxPool,
		"Store":             _config.Store,
		"LogLevel":          _config.LogLevel,
		"LogFile":           _config.LogFile,
		"Moniker":           _config.Moniker,
		"TCPTimeout":        _config.TCPTimeout,
		"ReplicationFactor": _config.ReplicationFactor,
		"Alpha":             _config.Alpha,
		"QueryTimeout":      _config.QueryTimeout,
		"RequestTimeout":    _config.RequestTimeout,
		"MaxRecords":        _config.MaxRecords,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
		logFields["CacheSize"] = _config.CacheSize
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

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

	// look for config file in [datadir]/safenode.toml (.json, .yaml also work)
	viper.SetConfigName("safenode")      // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
