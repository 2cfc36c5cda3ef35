// Package stores provides the SQLite persistence layer of gspice: the device
// model library used while compiling schematics and the history of
// simulation runs. Schema changes are applied with embedded migrations.
package stores
