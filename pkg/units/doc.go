// Package units implements engineering-notation values as used in SPICE
// netlists: a base number scaled by one of the standard magnitude suffixes
// (T, G, Meg, K, mil, m, u, n, p, f).
//
// A Value keeps the prefix it was written with, so a value read from user
// input is written back into a netlist in the same notation:
//
//	v, err := units.Parse("4.7K")
//	// v.Prefix == units.Kilo, v.Base == 4.7
//	v.String()  // "4.7K"
//	v.Float64() // 4700
package units
