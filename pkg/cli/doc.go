// Package cli holds the pieces shared by the retrieva command line:
// configuration, data directory layout and result output.
//
// Configuration lives in ~/.retrieva/config.yaml and is created empty on
// first use. Every setting has a default, so an empty file runs fully
// offline: badger metadata and local snapshots under ~/.retrieva/data, and
// the hash embedder.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig()
//	cfg.ApplyEnv(os.Getenv)
//
//	cli.Output(sessions, cli.OutputOptions{Format: cli.FormatTable})
package cli
