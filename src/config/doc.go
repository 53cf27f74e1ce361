// Package config defines the configuration of an eventcore node.
//
// The command line and Go callers both go through the Config object defined in
// this package. On top of these options, eventcore relies on a data directory,
// defined by Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // a plain text file containing the raw private key (cf. eventcore keygen).
//  peers.json // a JSON file containing the address book.
//  badger_db // (optional) the snapshot database when Store is set.
package config
