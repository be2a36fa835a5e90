/*
Package config loads the configuration of a counter simulation run from a TOML file,
with overrides from a .env file or the environment.

An example config file:

	LogLevel = "debug"

	[Simulation]
	Replicas = 5
	Steps = 10000
	Seed = 42
	DuplicateRate = 0.2
	DecrementRate = 0.5
	FlushEvery = 20
	GossipEvery = 500
*/
package config
