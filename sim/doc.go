// Package sim provides the shared vocabulary of the batched simulation pipeline.
//
// # Reading Guide
//
// Start with these files to understand the contract between the pipeline and
// the simulations it drives:
//   - unit.go: the Unit interface every Simulation Backend implements
//   - space.go: observation/action space descriptors and batch derivation
//   - errors.go: usage / backend / resource error taxonomy
//
// # Architecture
//
// The sim package defines interfaces and value types; implementations live in
// sub-packages:
//   - sim/vector/: the asynchronous Vector Pipeline, its Workers and buffers
//   - sim/backend/: a reference in-process Simulation Backend
//   - sim/trace/: per-call pipeline trace recording and summaries
//
// Backends are made available through an explicit Registry owned by the
// application. Nothing registers itself at import time.
//
// # Key Interfaces
//
//   - Unit: one independently steppable simulation instance
//   - Seeder: optional, lets a Unit accept a deterministic seed before reset
//   - UnitFactory: builds the Unit for a given worker index
package sim
