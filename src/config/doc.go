// Package config defines the configuration for a safenode.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//	priv_key    // a plain text file containing the raw private key (cf. safenode keygen).
//	peers.json  // (optional) a JSON file listing the bootstrap peers.
//	badger_db   // (optional) the record database, when Store is set.
//	safenode.toml // (optional) a config file read by the command line.
package config
