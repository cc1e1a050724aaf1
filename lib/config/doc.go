// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for panbackup.
//
// Configuration is loaded from a single file specified by either the
// PANBACKUP_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search. Command
// line flags are applied on top of the loaded values by the CLI.
//
// Variable expansion is performed on path fields after loading:
// ${HOME} and ${VAR:-default} patterns are expanded. The app key and
// secret key are the only values read from the environment
// (BAIDU_APP_KEY, BAIDU_SECRET_KEY), and only when the file leaves
// them empty.
//
// Key exports:
//
//   - [Config] -- the backup job: source, destination, retention,
//     chunking, credentials and retry budget
//   - [Default] -- a Config with every optional field filled in
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [ByteSize] -- a size that accepts "4MiB" as well as 4194304
package config
