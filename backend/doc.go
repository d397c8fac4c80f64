// Package backend is a self-contained implementation of the tracking REST
// API. It backs local development and the end-to-end tests of the client,
// capture and dashboard packages.
//
// Endpoints:
//
//	POST /api/login                           {username, password} -> {success, surveyor, message}
//	POST /api/location/update                 LiveLocationMessage, Basic auth required
//	GET  /api/surveyors                       surveyor records, passwords omitted
//	GET  /api/surveyors/status                surveyorId -> Online | Offline
//	GET  /api/location/latest/all             latest fix per surveyor
//	GET  /api/location/{id}/latest            latest fix of one surveyor, 204 if none
//	GET  /api/location/{id}/track?start=&end= fixes in range, 204 if none, 400 if start > end
//	GET  /api/feeds/vehicle-positions.pb      GTFS-Realtime VehiclePositions
//	GET  /api/feeds/vehicle-monitoring.{json,xml}  SIRI VehicleMonitoring
//	GET  /api/health
//
// Fixes are kept in a Store: MemoryStore by default, DynamoStore when a
// table is configured.
package backend
