// Package api implements the REST surface of bmcscoutd.
//
// All endpoints live under /api/v1 and return JSON. Read endpoints serve the
// latest snapshots from the in-memory store; history queries go to the SQLite
// archive. The one mutating endpoint, POST /api/v1/devices/{id}/power,
// forwards a power action to the device's Redfish controller. Everything
// else rejects non-GET methods with 405.
package api
