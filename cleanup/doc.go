// Package cleanup deletes token records that have outlived their type's lifetime.
//
// A record of type T is removed once created_at <= now - ttl(T). Revocation rows
// go with it. Removing a record makes any token still presented for it fail with
// RecordMissing, which is the same outcome an expired token would get.
package cleanup
