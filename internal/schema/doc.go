// Package schema defines the attendance data model shared by the local
// record store and the remote sync document.
//
// # Workers
//
// A worker is identified by a stable id and carries a running attendance
// count plus the date of its most recent attendance:
//
//	{
//	  "id": "w1",
//	  "name": "María López",
//	  "dni": "40123456",
//	  "totalAssists": 5,
//	  "lastAssistance": "2024-01-09"
//	}
//
// # Evidence Records
//
// Evidence uses the per-day composite shape: exactly one record per
// (worker, date), keyed "{workerId}_{date}", holding an optional check-in
// slot and an optional check-out slot. Saving evidence for a slot that is
// already filled replaces the slot in place.
//
//	{
//	  "id": "w1_2024-01-10",
//	  "workerId": "w1",
//	  "date": "2024-01-10",
//	  "checkIn": {"image": "data:image/jpeg;base64,...", "validated": true},
//	  "checkOut": null
//	}
//
// The append-only per-event shape is deliberately not supported: both shapes
// would be written to the same remote file and cannot be told apart there.
//
// # Remote Document
//
// The whole local dataset is serialized as a Dataset and stored as the
// content of one named file inside the remote document.
package schema
