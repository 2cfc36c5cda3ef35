// Package ngspice binds the ngspice shared library at runtime.
//
// A Library is one loaded copy of libngspice. The process can only host one
// engine instance per loaded image, so parallel simulations load distinct
// copies of the library file (see LibraryPath). The binding is built with
// purego: the library is opened with dlopen, the eight entry points are
// resolved by name, and six Go trampolines are handed to ngSpice_Init.
//
// The engine calls the trampolines from its own threads. Every trampoline
// copies what it receives into Go values before passing it on, so no pointer
// into engine memory outlives the callback. The engine's user-data pointer
// carries an opaque handle that selects the Sink receiving the callbacks.
package ngspice
