// Package feed exports surveyor positions in public transport real-time
// formats so that existing AVL and map tooling can consume them.
//
//   - GTFS-Realtime VehiclePositions (protobuf), one entity per surveyor
//   - SIRI VehicleMonitoring (JSON or XML), one VehicleActivity per surveyor
//
// Surveyors are modelled as vehicles: the surveyor id is the vehicle id,
// the display name its label and the project its line.
package feed
