// Package config loads the gspice configuration file.
//
// The file is YAML. Missing keys keep their defaults, unknown keys are
// rejected, and the result is validated with struct tags:
//
//	engine:
//	  library: lib/libngspice.so.%d
//	  workers: 4
//	  poll_interval: 20ms
//	  flush_interval: 100ms
//	store:
//	  path: gspice.db
//	models:
//	  paths: [models/]
//	  watch: true
//	telemetry:
//	  logging:
//	    level: debug
//
// GSPICE_LIBRARY, GSPICE_WORKERS, GSPICE_DB and LOG_LEVEL override the
// corresponding settings.
package config
