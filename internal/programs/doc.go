// Package programs is the builtin program library: small contracts used by
// the CLI, the scenario harness and tests. Each program is registered under
// a dotted name and receives its arguments as a calldata map.
package programs
