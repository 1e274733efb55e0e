// Package license manages the deployment-wide clinic license.
//
// # Overview
//
// Exactly one license record exists per deployment. It carries a 48 character
// upper-case hex key, an active flag and the set of enabled modules. An empty
// module set enables every module.
//
// The Store owns the record:
//
//	- Current returns the license, provisioning it on first use
//	- Provision runs the same path eagerly at startup
//	- Update changes the active flag and the enabled modules
//	- ReissueKey replaces the key
//
// # Provisioning
//
// Provisioning is an insert-if-absent on the repository, so concurrent callers
// across processes converge on one record. Inside one process concurrent
// callers share a single in-flight load.
//
// A fresh license is active with every module enabled. Its key comes from the
// secrets file when that file already holds a well-formed LICENSE_KEY (the
// store was reset), otherwise it is generated from crypto/rand. A record that
// lacks a key gets one backfilled.
//
// # Secrets file
//
// The key is mirrored into a dotenv file as LICENSE_KEY. Provisioning only
// writes the key when the file has none; ReissueKey replaces the line in
// place. Failures to read or write the file are logged and never fail the
// request.
package license
